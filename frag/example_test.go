package frag_test

import (
	"fmt"

	"github.com/joshuapare/fragkit/frag"
)

func Example() {
	lib := frag.New(nil)
	defer lib.Shutdown()
	sys := lib.System()

	stack, err := lib.NewFixedStack(sys, "scratch", false, make([]byte, 1024))
	if err != nil {
		panic(err)
	}
	defer lib.Destroy(sys, stack)

	a, _ := stack.Alloc(64, 16)
	b, _ := stack.Alloc(32, 0)
	fmt.Println(len(a), len(b), stack.Stats().Count)

	stack.Free(b)
	stack.Free(a)
	fmt.Println(stack.Stats().Count, stack.Stats().CountPeak)
	// Output:
	// 64 32 2
	// 0 2
}

func ExampleLibrary_NewGroup() {
	lib := frag.New(nil)
	defer lib.Shutdown()
	sys := lib.System()

	textures, _ := lib.NewGroup(sys, "textures", true, sys)
	defer lib.Destroy(sys, textures)

	b, _ := textures.Alloc(100, 0)
	fmt.Println(textures.Name(), textures.Stats().Count, textures.Stats().Bytes)
	textures.Free(b)
	// Output:
	// textures 1 128
}

func ExampleMakeValue() {
	lib := frag.New(nil)
	defer lib.Shutdown()

	type vec3 struct{ X, Y, Z float32 }
	v, _ := frag.MakeValue(lib.System(), vec3{1, 2, 3})
	fmt.Println(v.X + v.Y + v.Z)
	frag.Delete(lib.System(), v)
	// Output: 6
}

func ExampleStackUsage() {
	lib := frag.New(nil)
	defer lib.Shutdown()
	sys := lib.System()

	stack, _ := lib.NewFixedStack(sys, "frame", false, make([]byte, 256))
	defer lib.Destroy(sys, stack)

	b, _ := stack.Alloc(24, 8)
	used, capacity, _ := frag.StackUsage(stack)
	fmt.Println(used, capacity)
	stack.Free(b)
	// Output: 32 256
}
