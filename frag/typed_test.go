package frag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fragkit/frag"
	"github.com/joshuapare/fragkit/internal/testutil"
)

type point struct {
	X, Y  int32
	Label [8]byte
}

func TestMake_ZeroedAndDeleted(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	p, err := frag.Make[point](sys)
	require.NoError(t, err)
	require.Equal(t, point{}, *p)
	p.X, p.Y = 3, 4
	require.Equal(t, 1, sys.Stats().Count)

	frag.Delete(sys, p)
	require.Equal(t, 0, sys.Stats().Count)
	frag.Delete[point](sys, nil)
}

func TestMakeValue_Initializes(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	stack := newStack(t, lib, 256)

	p, err := frag.MakeValue(stack, point{X: 25})
	require.NoError(t, err)
	require.Equal(t, int32(25), p.X)

	q, err := frag.MakeValue(stack, uint64(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100), *q)

	frag.Delete(stack, q)
	frag.Delete(stack, p)
	require.Equal(t, 0, stack.Stats().Count)
}

func TestMakeSlice_RoundTrip(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()

	s, err := frag.MakeSlice[uint32](sys, 4)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 0, 0}, s)
	s[3] = 9
	require.Equal(t, 16, sys.Size(bytesOf(s)))

	frag.FreeSlice(sys, s)
	require.Equal(t, 0, sys.Stats().Count)

	empty, err := frag.MakeSlice[uint64](sys, 0)
	require.NoError(t, err)
	require.Empty(t, empty)
	frag.FreeSlice(sys, empty)
	require.Equal(t, 0, sys.Stats().Count)
}

func TestMake_PointerTypesAssert(t *testing.T) {
	lib, trap := testutil.NewLibrary(t, nil)
	sys := lib.System()

	type withPointer struct {
		Name string
	}
	trap.Expect(t, testutil.KindAssert, func() { _, _ = frag.Make[withPointer](sys) })
	trap.Expect(t, testutil.KindAssert, func() { _, _ = frag.MakeSlice[*int](sys, 2) })
	trap.Expect(t, testutil.KindAssert, func() { _, _ = frag.MakeSlice[int](sys, -1) })
	require.Equal(t, 0, sys.Stats().Count)
}

func TestMake_OverAlignedType(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, func(cfg *frag.Config) { cfg.DefaultAlignment = 1 })
	sys := lib.System()

	p, err := frag.Make[uint64](sys)
	require.NoError(t, err)
	require.Zero(t, addressOf(p)%8)
	frag.Delete(sys, p)
}
