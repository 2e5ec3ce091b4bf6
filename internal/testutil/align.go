package testutil

import "unsafe"

// IsAligned reports whether the first byte of b sits on an alignment
// boundary. b must have non-zero capacity.
func IsAligned(b []byte, alignment int) bool {
	return Addr(b)&uintptr(alignment-1) == 0
}

// Addr returns the address of b's first byte.
func Addr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
