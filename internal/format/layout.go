package format

// ControlMagic tags the first word of every allocator control block.
// Layout (little-endian): 'f' 'r' 'a' 'g'.
const ControlMagic uint32 = 0x67617266

// Control block header. Every allocator is one contiguous block obtained
// from its owner:
//
//	[ header | lock (optional) | implementation payload | name | NUL ]
//
// The header is fixed size and starts every block:
//
//	0x00  magic       uint32
//	0x04  flags       uint32
//	0x08  bytes       uint64  (running byte count, including overhead)
//	0x10  count       uint64  (live allocations)
//	0x18  bytes peak  uint64
//	0x20  count peak  uint64
//	0x28  name length uint32  (encoded bytes, terminator excluded)
//	0x2C  impl size   uint32
const (
	ControlMagicOffset     = 0x00
	ControlFlagsOffset     = 0x04
	ControlBytesOffset     = 0x08
	ControlCountOffset     = 0x10
	ControlBytesPeakOffset = 0x18
	ControlCountPeakOffset = 0x20
	ControlNameLenOffset   = 0x28
	ControlImplSizeOffset  = 0x2C
	ControlHeaderSize      = 0x30
)

// Control block flag bits.
const (
	ControlFlagLocked uint32 = 1 << 0
	ControlFlagSystem uint32 = 1 << 1
	ControlFlagClosed uint32 = 1 << 2
)

// NameTerminatorSize is the NUL byte stored after the encoded name.
const NameTerminatorSize = 1

// Stack block header, written immediately before each fixed-stack block:
//
//	-0x08  pad  uint32  (bytes between the previous cursor and the block start)
//	-0x04  size uint32  (requested size)
const (
	StackHeaderPadOffset  = 0x00
	StackHeaderSizeOffset = 0x04
	StackHeaderSize       = 0x08

	// MaxStackBlockSize is the largest request a stack header can describe.
	MaxStackBlockSize = 0xFFFFFFFF
)

// Fixed-stack state kept in the allocator's implementation payload. All
// three fields are indices into the caller-supplied buffer.
//
//	0x00  begin  uint64
//	0x08  end    uint64
//	0x10  cursor uint64
const (
	StackBeginOffset  = 0x00
	StackEndOffset    = 0x08
	StackCursorOffset = 0x10
	StackStateSize    = 0x18
)

// WordAlignmentMask rounds control block regions to 8 bytes.
const WordAlignmentMask = 7

// DefaultAlignment is used when a caller requests alignment 0.
const DefaultAlignment = 16
