package frag

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cznic/mathutil"

	"github.com/joshuapare/fragkit/internal/format"
)

const (
	// smallBlockMax is the largest request served from the Go heap. Larger
	// requests are page-backed where the platform supports it.
	smallBlockMax = 32 << 10

	// minSizeClass is the smallest usable size the heap hands out.
	minSizeClass = 16

	// maxRequest bounds what the heap will attempt at all.
	maxRequest = 1 << 40
)

// heapBlock is the heap's record of one live block.
type heapBlock struct {
	backing []byte // released on free
	usable  int    // bytes charged; at least the request
	mapped  bool
}

// systemHeap serves the system allocator. It is only touched under the
// system allocator's lock.
type systemHeap struct {
	live     map[uintptr]heapBlock
	pageSize int
}

func newSystemHeap() *systemHeap {
	return &systemHeap{
		live:     make(map[uintptr]heapBlock),
		pageSize: pageSize(),
	}
}

// sizeClass rounds a small request up to the next power of two, at least
// minSizeClass.
func sizeClass(size int) int {
	if size <= minSizeClass {
		return minSizeClass
	}
	return 1 << mathutil.BitLen(size-1)
}

// usableSize is the number of bytes charged for a request of size bytes.
func (h *systemHeap) usableSize(size int) int {
	if size <= smallBlockMax || !pagesSupported {
		return sizeClass(size)
	}
	return int(format.AlignUp(uintptr(size), uintptr(h.pageSize)))
}

func (h *systemHeap) alloc(size, alignment int) ([]byte, int, error) {
	if size > maxRequest {
		return nil, 0, errors.Wrapf(ErrRequestTooLarge, "size %d", size)
	}
	usable := h.usableSize(size)

	var (
		backing []byte
		block   []byte
		mapped  bool
	)
	if size > smallBlockMax && pagesSupported {
		var err error
		backing, block, err = mapPages(usable, alignment, h.pageSize)
		if err != nil {
			return nil, 0, err
		}
		mapped = true
	} else {
		backing, block = alignedHeapBlock(usable, alignment)
	}

	// Zero-size blocks keep one byte of capacity so they have an address.
	out := block[:size:max(size, 1)]
	h.live[addrOf(out)] = heapBlock{backing: backing, usable: usable, mapped: mapped}
	return out, usable, nil
}

// alignedHeapBlock over-allocates from the Go heap and slices out an aligned
// window of n bytes.
func alignedHeapBlock(n, alignment int) (backing, block []byte) {
	pad := 0
	if alignment > 1 {
		pad = alignment - 1
	}
	backing = make([]byte, n+pad)
	addr := addrOf(backing)
	shift := int(format.AlignUp(addr, uintptr(alignment)) - addr)
	return backing, backing[shift : shift+n : shift+n]
}

func (h *systemHeap) lookup(block []byte) (heapBlock, bool) {
	if cap(block) == 0 {
		return heapBlock{}, false
	}
	hb, ok := h.live[addrOf(block)]
	return hb, ok
}

func (h *systemHeap) free(block []byte) error {
	ptr := addrOf(block)
	hb, ok := h.live[ptr]
	if !ok {
		return nil
	}
	delete(h.live, ptr)
	if hb.mapped {
		return unmapPages(hb.backing)
	}
	return nil
}

// systemImpl is the variant behind every library's root allocator.
type systemImpl struct {
	heap *systemHeap
}

func (s systemImpl) Alloc(a *Allocator, size, alignment int, site Site) ([]byte, int, error) {
	return s.heap.alloc(size, alignment)
}

func (s systemImpl) Free(a *Allocator, block []byte, site Site) {
	if err := s.heap.free(block); err != nil {
		a.lib.logger.Warn("unmap failed", "allocator", a.Name(), "error", err)
	}
}

func (s systemImpl) Size(a *Allocator, block []byte) (int, bool) {
	hb, ok := s.heap.lookup(block)
	if !a.Assert(ok, "system.owns(ptr)",
		fmt.Sprintf("pointer %#x was not allocated by the system heap", addrOf(block))) {
		return 0, false
	}
	return hb.usable, true
}

func (s systemImpl) Shutdown(a *Allocator) {}
