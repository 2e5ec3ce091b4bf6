package frag

import (
	"reflect"
	"unsafe"
)

// Make allocates a zeroed T from a. T must not contain Go pointers: the
// collector does not scan allocator memory.
func Make[T any](a *Allocator) (*T, error) {
	b, err := allocTyped[T](a, a.callerSite(), 1)
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b))), nil
}

// MakeValue allocates a T from a initialized to v.
func MakeValue[T any](a *Allocator, v T) (*T, error) {
	b, err := allocTyped[T](a, a.callerSite(), 1)
	if err != nil {
		return nil, err
	}
	p := (*T)(unsafe.Pointer(unsafe.SliceData(b)))
	*p = v
	return p, nil
}

// Delete returns p, obtained from Make or MakeValue on a, to a. A nil p is a
// no-op.
func Delete[T any](a *Allocator, p *T) {
	if p == nil {
		return
	}
	a.FreeAt(a.callerSite(), typedBytes(p, 1))
}

// MakeSlice allocates a zeroed slice of n T from a. n == 0 still allocates,
// so the result can be passed to FreeSlice.
func MakeSlice[T any](a *Allocator, n int) ([]T, error) {
	b, err := allocTyped[T](a, a.callerSite(), n)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}

// FreeSlice returns s, obtained from MakeSlice on a, to a. Only the start
// of s is used to find the block, so s must not be resliced from the front.
func FreeSlice[T any](a *Allocator, s []T) {
	if s == nil {
		return
	}
	a.FreeAt(a.callerSite(), typedBytes(unsafe.SliceData(s), len(s)))
}

func allocTyped[T any](a *Allocator, site Site, n int) ([]byte, error) {
	if !a.usable(site, "Make") {
		return nil, errUnusable(a, site)
	}
	t := reflect.TypeFor[T]()
	if !pointerFree(t) {
		a.lib.assertFailed(site, "!has_pointers(T)", "type "+t.String()+" contains Go pointers")
		return nil, errUnusable(a, site)
	}
	if n < 0 || (t.Size() > 0 && uintptr(n) > ^uintptr(0)/2/t.Size()) {
		a.lib.assertFailed(site, "n * sizeof(T) fits", "invalid element count for "+t.String())
		return nil, errUnusable(a, site)
	}
	alignment := int(t.Align())
	if alignment <= a.lib.cfg.DefaultAlignment {
		alignment = 0
	}
	return a.AllocZeroAt(site, n*int(t.Size()), alignment)
}

// typedBytes rebuilds the block view for n values at p. Blocks always have
// at least one byte of capacity, so zero-size types still map to an address.
func typedBytes[T any](p *T, n int) []byte {
	size := n * int(unsafe.Sizeof(*p))
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), max(size, 1))[:size]
}

// pointerFree reports whether values of t hold no Go pointers.
func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
