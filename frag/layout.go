package frag

import (
	"sync"
	"unsafe"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/fragkit/internal/buf"
	"github.com/joshuapare/fragkit/internal/format"
)

// lockSize is the control block region reserved for the optional mutex.
const lockSize = (int(unsafe.Sizeof(sync.Mutex{})) + format.WordAlignmentMask) &^ format.WordAlignmentMask

// controlAlignment is the minimum alignment requested for a control block so
// the lock region lands on a word boundary.
const controlAlignment = 8

// controlBlock is a view over an allocator's control block. Region offsets
// are derived from the header, so a view needs nothing but the bytes.
type controlBlock []byte

// encodeName converts a name to the single-byte form stored in control
// blocks. Runes outside Windows-1252 are replaced.
func encodeName(name string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	out, err := enc.Bytes([]byte(name))
	if err != nil {
		return []byte(name)
	}
	return out
}

// decodeName converts a stored name back to UTF-8.
func decodeName(raw []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// controlSize returns the exact control block size for the given regions:
// header + optional lock + payload + name + terminator.
func controlSize(nameLen int, needsLock bool, implSize int) (int, bool) {
	lock := 0
	if needsLock {
		lock = lockSize
	}
	return buf.SumOverflowSafe(format.ControlHeaderSize, lock, implSize, nameLen, format.NameTerminatorSize)
}

// buildControlBlock lays out a fresh control block in block, which must be
// exactly controlSize bytes. Stats start at zero. Returns the view and the
// mutex placed in the lock region (nil without a lock).
func buildControlBlock(block []byte, name []byte, needsLock bool, implSize int, flags uint32) (controlBlock, *sync.Mutex, bool) {
	want, ok := controlSize(len(name), needsLock, implSize)
	if !ok || want != len(block) {
		return nil, nil, false
	}
	clear(block)

	if needsLock {
		flags |= format.ControlFlagLocked
	}
	format.PutU32(block, format.ControlMagicOffset, format.ControlMagic)
	format.PutU32(block, format.ControlFlagsOffset, flags)
	format.PutU32(block, format.ControlNameLenOffset, uint32(len(name)))
	format.PutU32(block, format.ControlImplSizeOffset, uint32(implSize))

	cb := controlBlock(block)
	copy(block[cb.nameOffset():], name)
	block[cb.nameOffset()+len(name)] = 0

	var mu *sync.Mutex
	if needsLock {
		if mu = cb.placeLock(); mu == nil {
			return nil, nil, false
		}
	}
	return cb, mu, true
}

// placeLock constructs the mutex inside the lock region.
//
// This is the only place raw memory is reinterpreted. It is sound because
// sync.Mutex holds no Go pointers (the collector never needs to scan it),
// its zero value is an unlocked mutex (the region was cleared), the region
// starts on a word boundary (control blocks are at least 8-byte aligned and
// the header is a multiple of 8), and the returned interior pointer keeps
// the block's backing array alive.
func (cb controlBlock) placeLock() *sync.Mutex {
	off := format.ControlHeaderSize
	region := cb[off : off+lockSize]
	if !format.IsAligned(uintptr(unsafe.Pointer(&region[0])), controlAlignment) {
		return nil
	}
	return (*sync.Mutex)(unsafe.Pointer(&region[0]))
}

func (cb controlBlock) valid() bool {
	return buf.Has(cb, 0, format.ControlHeaderSize) && format.ReadU32(cb, format.ControlMagicOffset) == format.ControlMagic
}

func (cb controlBlock) flags() uint32 {
	return format.ReadU32(cb, format.ControlFlagsOffset)
}

func (cb controlBlock) setFlag(f uint32) {
	format.PutU32(cb, format.ControlFlagsOffset, cb.flags()|f)
}

func (cb controlBlock) hasLock() bool {
	return cb.flags()&format.ControlFlagLocked != 0
}

func (cb controlBlock) implSize() int {
	return int(format.ReadU32(cb, format.ControlImplSizeOffset))
}

func (cb controlBlock) nameLen() int {
	return int(format.ReadU32(cb, format.ControlNameLenOffset))
}

func (cb controlBlock) payloadOffset() int {
	off := format.ControlHeaderSize
	if cb.hasLock() {
		off += lockSize
	}
	return off
}

func (cb controlBlock) nameOffset() int {
	return cb.payloadOffset() + cb.implSize()
}

// payload returns the implementation region, clipped so a variant cannot
// write into the name.
func (cb controlBlock) payload() []byte {
	p, _ := buf.Slice(cb, cb.payloadOffset(), cb.implSize())
	return p
}

func (cb controlBlock) name() string {
	raw, ok := buf.Slice(cb, cb.nameOffset(), cb.nameLen())
	if !ok {
		return ""
	}
	return decodeName(raw)
}

func (cb controlBlock) stats() Stats {
	return Stats{
		Bytes:     int(format.ReadU64(cb, format.ControlBytesOffset)),
		Count:     int(format.ReadU64(cb, format.ControlCountOffset)),
		BytesPeak: int(format.ReadU64(cb, format.ControlBytesPeakOffset)),
		CountPeak: int(format.ReadU64(cb, format.ControlCountPeakOffset)),
	}
}

func (cb controlBlock) setStats(s Stats) {
	format.PutU64(cb, format.ControlBytesOffset, uint64(s.Bytes))
	format.PutU64(cb, format.ControlCountOffset, uint64(s.Count))
	format.PutU64(cb, format.ControlBytesPeakOffset, uint64(s.BytesPeak))
	format.PutU64(cb, format.ControlCountPeakOffset, uint64(s.CountPeak))
}
