package frag_test

import "unsafe"

func bytesOf[T any](s []T) []byte {
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

func addressOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
