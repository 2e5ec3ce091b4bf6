//go:build !unix

package frag

import "os"

// Without anonymous mappings every request is served from the Go heap.
const pagesSupported = false

func pageSize() int {
	return os.Getpagesize()
}

func mapPages(n, alignment, page int) (backing, block []byte, err error) {
	backing, block = alignedHeapBlock(n, alignment)
	return backing, block, nil
}

func unmapPages(backing []byte) error { return nil }
