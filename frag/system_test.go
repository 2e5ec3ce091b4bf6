package frag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fragkit/internal/testutil"
)

func TestSystem_AllocAligned(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	b, err := sys.Alloc(16, 64)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.True(t, testutil.IsAligned(b, 64))
	sys.Free(b)
	require.Equal(t, 0, sys.Stats().Count)
}

func TestSystem_ChargesUsableSize(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	tests := []struct {
		size   int
		usable int
	}{
		{0, 16},
		{1, 16},
		{16, 16},
		{17, 32},
		{100, 128},
		{4096, 4096},
		{4097, 8192},
	}
	for _, tt := range tests {
		b, err := sys.Alloc(tt.size, 0)
		require.NoError(t, err)
		require.Len(t, b, tt.size)
		require.Equal(t, tt.usable, sys.Size(b), "size %d", tt.size)
		require.Equal(t, tt.usable, sys.Stats().Bytes)
		sys.Free(b)
	}
	require.Equal(t, 8192, sys.Stats().BytesPeak)
}

func TestSystem_LargeBlocks(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	const size = 1 << 20
	b, err := sys.AllocZero(size, 4096)
	require.NoError(t, err)
	require.Len(t, b, size)
	require.True(t, testutil.IsAligned(b, 4096))
	require.GreaterOrEqual(t, sys.Size(b), size)
	require.True(t, testutil.IsZero(b))

	b[0], b[size-1] = 1, 2

	big, err := sys.Realloc(b, 2*size, 1<<16)
	require.NoError(t, err)
	require.True(t, testutil.IsAligned(big, 1<<16))
	require.Equal(t, byte(1), big[0])
	require.Equal(t, byte(2), big[size-1])

	sys.Free(big)
	require.Equal(t, 0, sys.Stats().Count)
	require.Equal(t, 0, sys.Stats().Bytes)
}

func TestSystem_UnknownPointerAsserts(t *testing.T) {
	lib, trap := testutil.NewLibrary(t, nil)
	sys := lib.System()

	trap.Expect(t, testutil.KindAssert, func() { sys.Free(make([]byte, 8)) })

	b, err := sys.Alloc(8, 0)
	require.NoError(t, err)
	sys.Free(b)
	trap.Expect(t, testutil.KindAssert, func() { sys.Free(b) })
	require.Equal(t, 0, sys.Stats().Count)
}

func TestSystem_DistinctZeroSizeBlocks(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	a, err := sys.Alloc(0, 0)
	require.NoError(t, err)
	b, err := sys.Alloc(0, 0)
	require.NoError(t, err)
	require.NotEqual(t, testutil.Addr(a), testutil.Addr(b))
	sys.Free(a)
	sys.Free(b)
}
