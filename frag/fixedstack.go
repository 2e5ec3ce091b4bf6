package frag

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/fragkit/internal/buf"
	"github.com/joshuapare/fragkit/internal/format"
)

// fixedStackImpl is a bump allocator over a caller-supplied buffer. Blocks
// must be freed in reverse order of allocation. Each block is preceded by an
// 8-byte header recording the padding inserted in front of it and its size.
//
// The begin, end and cursor indices live in the allocator's payload; the
// impl only keeps the buffer itself.
type fixedStackImpl struct {
	buf []byte
}

// NewFixedStack creates a fixed-stack allocator over buffer. Its control
// block is allocated from owner; buffer stays owned by the caller and must
// outlive the allocator.
func (l *Library) NewFixedStack(owner *Allocator, name string, needsLock bool, buffer []byte) (*Allocator, error) {
	impl := &fixedStackImpl{buf: buffer}
	a, err := l.create(Caller(1), owner, Descriptor{
		Name:      name,
		NeedsLock: needsLock,
		Impl:      impl,
		ImplSize:  format.StackStateSize,
	}, 0)
	if err != nil {
		return nil, err
	}
	impl.setState(a, stackState{begin: 0, end: len(buffer), cur: 0})
	return a, nil
}

type stackState struct {
	begin, end, cur int
}

func (f *fixedStackImpl) state(a *Allocator) stackState {
	p := a.Payload()
	return stackState{
		begin: int(format.ReadU64(p, format.StackBeginOffset)),
		end:   int(format.ReadU64(p, format.StackEndOffset)),
		cur:   int(format.ReadU64(p, format.StackCursorOffset)),
	}
}

func (f *fixedStackImpl) setState(a *Allocator, s stackState) {
	p := a.Payload()
	format.PutU64(p, format.StackBeginOffset, uint64(s.begin))
	format.PutU64(p, format.StackEndOffset, uint64(s.end))
	format.PutU64(p, format.StackCursorOffset, uint64(s.cur))
}

func (f *fixedStackImpl) setCursor(a *Allocator, cur int) {
	format.PutU64(a.Payload(), format.StackCursorOffset, uint64(cur))
}

// place computes where a block of size bytes would start if allocated at
// cursor cur, returning its index and end. ok is false if it does not fit.
func (f *fixedStackImpl) place(s stackState, size, alignment int) (begin, end int, ok bool) {
	if cap(f.buf) == 0 {
		return 0, 0, false
	}
	base := addrOf(f.buf)
	pad := format.PaddingWithOffset(base+uintptr(s.cur), uintptr(alignment), format.StackHeaderSize)
	if pad > uintptr(s.end-s.cur) {
		return 0, 0, false
	}
	begin = s.cur + int(pad)
	end, ok = buf.AddOverflowSafe(begin, size)
	if !ok || end > s.end {
		return 0, 0, false
	}
	// A zero-size block still needs one addressable byte, so a request
	// landing exactly on end fails even though it would fit in zero bytes.
	if size == 0 && begin >= s.end {
		return 0, 0, false
	}
	return begin, end, true
}

func (f *fixedStackImpl) Alloc(a *Allocator, size, alignment int, site Site) ([]byte, int, error) {
	if !a.Assert(uint64(size) <= format.MaxStackBlockSize, "size <= 0xffffffff",
		"requested size exceeds maximum of 2^32") {
		return nil, 0, errors.Wrapf(ErrInvalidRequest, "size %d", size)
	}
	s := f.state(a)
	begin, end, ok := f.place(s, size, alignment)
	if !ok {
		return nil, 0, errors.Wrapf(ErrStackFull, "size=%d alignment=%d cursor=%d end=%d", size, alignment, s.cur, s.end)
	}

	hdr := f.buf[begin-format.StackHeaderSize : begin]
	format.PutU32(hdr, format.StackHeaderPadOffset, uint32(begin-s.cur))
	format.PutU32(hdr, format.StackHeaderSizeOffset, uint32(size))

	f.setCursor(a, end)
	return f.buf[begin:end:max(end, begin+1)], end - s.cur, nil
}

// header reads the header of the block at idx.
func (f *fixedStackImpl) header(idx int) (pad, size int) {
	hdr := f.buf[idx-format.StackHeaderSize : idx]
	return int(format.ReadU32(hdr, format.StackHeaderPadOffset)), int(format.ReadU32(hdr, format.StackHeaderSizeOffset))
}

// index returns the buffer index of block, or ok=false if it does not point
// into the buffer past room for a header.
func (f *fixedStackImpl) index(s stackState, block []byte) (int, bool) {
	if cap(block) == 0 || cap(f.buf) == 0 {
		return 0, false
	}
	base, p := addrOf(f.buf), addrOf(block)
	if p < base || p-base >= uintptr(s.end) {
		return 0, false
	}
	idx := int(p - base)
	return idx, idx >= s.begin+format.StackHeaderSize
}

// locate validates block as the most recent live allocation and returns its
// index, header and the cursor it was allocated at.
func (f *fixedStackImpl) locate(a *Allocator, block []byte) (idx, size, prev int, ok bool) {
	s := f.state(a)
	idx, ok = f.index(s, block)
	if !a.Assert(ok, "begin <= ptr < end", fmt.Sprintf("pointer %#x does not belong to this stack", addrOf(block))) {
		return 0, 0, 0, false
	}
	pad, size := f.header(idx)
	if !a.Assert(s.cur == idx+size, "cur == ptr + header.size", "tried to free an invalid pointer") {
		return 0, 0, 0, false
	}
	prev = idx - pad
	if !a.Assert(prev >= s.begin, "ptr - header.pad >= begin", "malformed allocation header") {
		return 0, 0, 0, false
	}
	return idx, size, prev, true
}

func (f *fixedStackImpl) Size(a *Allocator, block []byte) (int, bool) {
	idx, size, prev, ok := f.locate(a, block)
	if !ok {
		return 0, false
	}
	return idx + size - prev, true
}

func (f *fixedStackImpl) Free(a *Allocator, block []byte, site Site) {
	s := f.state(a)
	idx, ok := f.index(s, block)
	if !ok {
		return
	}
	pad, _ := f.header(idx)
	f.setCursor(a, idx-pad)
}

// Resize grows or shrinks the top block in place when its current address
// satisfies alignment. Any other block is left for the alloc-copy-free path.
func (f *fixedStackImpl) Resize(a *Allocator, block []byte, newSize, alignment int) ([]byte, int, int, bool) {
	if uint64(newSize) > format.MaxStackBlockSize {
		return nil, 0, 0, false
	}
	s := f.state(a)
	idx, ok := f.index(s, block)
	if !ok {
		return nil, 0, 0, false
	}
	pad, size := f.header(idx)
	prev := idx - pad
	if s.cur != idx+size || prev < s.begin {
		return nil, 0, 0, false
	}
	if !format.IsAligned(addrOf(f.buf)+uintptr(idx), uintptr(alignment)) {
		return nil, 0, 0, false
	}
	end, ok := buf.AddOverflowSafe(idx, newSize)
	if !ok || end > s.end {
		return nil, 0, 0, false
	}

	format.PutU32(f.buf[idx-format.StackHeaderSize:idx], format.StackHeaderSizeOffset, uint32(newSize))
	f.setCursor(a, end)
	return f.buf[idx:end:max(end, idx+1)], idx + size - prev, end - prev, true
}

func (f *fixedStackImpl) Shutdown(a *Allocator) {
	f.buf = nil
}

// StackUsage reports how many bytes of a fixed stack's buffer are in use,
// headers and padding included, and the buffer's capacity. ok is false if a
// is not a fixed stack.
func StackUsage(a *Allocator) (used, capacity int, ok bool) {
	if !a.usable(Caller(1), "StackUsage") {
		return 0, 0, false
	}
	f, isStack := a.impl.(*fixedStackImpl)
	if !isStack {
		return 0, 0, false
	}
	a.lock()
	defer a.unlock()
	s := f.state(a)
	return s.cur - s.begin, s.end - s.begin, true
}
