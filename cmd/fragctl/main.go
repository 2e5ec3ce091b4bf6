// Command fragctl drives scripted allocation workloads through the frag
// allocators and prints their accounting.
package main

func main() {
	execute()
}
