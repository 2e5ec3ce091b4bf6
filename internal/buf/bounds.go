// Package buf provides overflow-checked arithmetic and bounds-checked
// slicing for laying out regions inside raw byte buffers.
package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// SumOverflowSafe adds every term, returning ok = false if any partial sum
// overflows or a term is negative. Used to size control blocks from their
// component regions.
func SumOverflowSafe(terms ...int) (int, bool) {
	total := 0
	for _, t := range terms {
		if t < 0 {
			return 0, false
		}
		var ok bool
		if total, ok = AddOverflowSafe(total, t); !ok {
			return 0, false
		}
	}
	return total, true
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
// The result's capacity is clipped to n so appends cannot spill into
// neighbouring regions.
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}
