package format

// Alignment utilities shared by the allocator control block and the
// fixed-stack header layout. Every alignment handled here must be a power of
// two; callers check with IsPow2 before aligning.

// IsPow2 reports whether x is a non-zero power of two.
//
// Example:
//
//	IsPow2(0)  = false
//	IsPow2(1)  = true
//	IsPow2(16) = true
//	IsPow2(24) = false
func IsPow2(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// AlignUp returns v rounded up to the next multiple of alignment.
//
// Example:
//
//	AlignUp(1, 8)  = 8
//	AlignUp(8, 8)  = 8
//	AlignUp(9, 16) = 16
func AlignUp(v, alignment uintptr) uintptr {
	mask := alignment - 1
	return (v + mask) &^ mask
}

// PaddingWithOffset returns the distance from cur to the first address that
// is aligned and at least offset bytes past cur. The aligned address itself
// is never formed, so huge alignments cannot wrap. The
// fixed stack stores this distance as the block header's pad.
//
// Example:
//
//	PaddingWithOffset(0x1000, 16, 8) = 16
//	PaddingWithOffset(0x1008, 16, 8) = 8
func PaddingWithOffset(cur, alignment, offset uintptr) uintptr {
	mask := alignment - 1
	return offset + (-(cur + offset))&mask
}

// IsAligned reports whether v is a multiple of alignment.
func IsAligned(v, alignment uintptr) bool {
	return v&(alignment-1) == 0
}
