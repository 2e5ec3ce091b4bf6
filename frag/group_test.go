package frag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fragkit/frag"
	"github.com/joshuapare/fragkit/internal/testutil"
)

func newGroup(t *testing.T, lib *frag.Library, delegate *frag.Allocator) *frag.Allocator {
	t.Helper()
	sys := lib.System()
	group, err := lib.NewGroup(sys, "group", true, delegate)
	require.NoError(t, err)
	t.Cleanup(func() {
		if lib.Active() {
			lib.Destroy(sys, group)
		}
	})
	return group
}

func TestGroup_Aligned(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	group := newGroup(t, lib, lib.System())

	b, err := group.Alloc(16, 64)
	require.NoError(t, err)
	require.True(t, testutil.IsAligned(b, 64))
	group.Free(b)
}

func TestGroup_TracksOwnCounts(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()
	group := newGroup(t, lib, sys)
	require.Same(t, sys, group.Delegate())

	counts := func() (int, int) {
		s := group.Stats()
		return s.Count, s.CountPeak
	}

	c, p := counts()
	require.Equal(t, [2]int{0, 0}, [2]int{c, p})

	b1, err := group.Alloc(8, 8)
	require.NoError(t, err)
	c, p = counts()
	require.Equal(t, [2]int{1, 1}, [2]int{c, p})

	b2, err := group.Alloc(16, 16)
	require.NoError(t, err)
	c, p = counts()
	require.Equal(t, [2]int{2, 2}, [2]int{c, p})

	group.Free(b2)
	c, p = counts()
	require.Equal(t, [2]int{1, 2}, [2]int{c, p})

	group.Free(b1)
	c, p = counts()
	require.Equal(t, [2]int{0, 2}, [2]int{c, p})
}

func TestGroup_IndependentOfDelegate(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()
	group := newGroup(t, lib, sys)

	direct, err := sys.Alloc(100, 0)
	require.NoError(t, err)
	viaGroup, err := group.Alloc(100, 0)
	require.NoError(t, err)

	gs := group.Stats()
	require.Equal(t, 1, gs.Count)
	require.Equal(t, sys.Size(viaGroup), gs.Bytes)

	// group control block + direct + via group
	require.Equal(t, 3, sys.Stats().Count)

	group.Free(viaGroup)
	sys.Free(direct)
	require.Equal(t, 1, sys.Stats().Count)
}

func TestGroup_OverFixedStack(t *testing.T) {
	lib, trap := testutil.NewLibrary(t, nil)
	stack := newStack(t, lib, 512)
	group := newGroup(t, lib, stack)

	a, err := group.Alloc(16, 16)
	require.NoError(t, err)
	b, err := group.Alloc(16, 16)
	require.NoError(t, err)

	require.Equal(t, stack.Stats().Bytes, group.Stats().Bytes)

	// LIFO is the delegate's rule, enforced through the group.
	trap.Expect(t, testutil.KindAssert, func() { group.Free(a) })
	require.Equal(t, 2, group.Stats().Count)

	group.Free(b)
	group.Free(a)
	require.Equal(t, 0, stack.Stats().Count)
}

func TestGroup_OutOfMemoryReportedPerAllocator(t *testing.T) {
	lib, trap := testutil.NewLibrary(t, nil)
	trap.Panic = false
	stack := newStack(t, lib, 64)
	group := newGroup(t, lib, stack)

	_, err := group.Alloc(256, 8)
	require.ErrorIs(t, err, frag.ErrOutOfMemory)
	require.ErrorIs(t, err, frag.ErrStackFull)

	reports := trap.OutOfMemory()
	require.Len(t, reports, 2)
	require.Equal(t, "woot", reports[0].Allocator)
	require.Equal(t, "group", reports[1].Allocator)
	require.Equal(t, frag.Stats{}, group.Stats())
}

func TestGroup_LeakDetection(t *testing.T) {
	lib, trap := testutil.NewLibrary(t, nil)
	sys := lib.System()

	group, err := lib.NewGroup(sys, "group", true, sys)
	require.NoError(t, err)
	b, err := group.Alloc(16, 32)
	require.NoError(t, err)

	trap.Expect(t, testutil.KindLeak, func() { lib.Destroy(sys, group) })
	group.Free(b)
	lib.Destroy(sys, group)
}

func TestGroup_NestedGroups(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	sys := lib.System()
	outer := newGroup(t, lib, sys)

	inner, err := lib.NewGroup(sys, "inner", false, outer)
	require.NoError(t, err)
	defer lib.Destroy(sys, inner)

	b, err := inner.Alloc(40, 0)
	require.NoError(t, err)
	require.Equal(t, 1, inner.Stats().Count)
	require.Equal(t, 1, outer.Stats().Count)
	require.Equal(t, inner.Stats().Bytes, outer.Stats().Bytes)

	inner.Free(b)
	require.Equal(t, 0, outer.Stats().Count)
}

func TestGroup_DelegateOnNonGroup(t *testing.T) {
	lib, _ := testutil.NewLibrary(t, nil)
	require.Nil(t, lib.System().Delegate())
}
