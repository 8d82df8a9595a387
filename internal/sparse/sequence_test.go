package sparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptySequenceSizeIsZero(t *testing.T) {
	s := New[int]()
	require.EqualValues(t, 0, s.Size())
	require.Nil(t, s.Get(0))
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New[int]()
	v := 42
	require.NoError(t, s.Put(7, &v))
	got := s.Get(7)
	require.NotNil(t, got)
	require.Equal(t, 42, *got)
}

func TestClearRemovesValueWithoutShrinking(t *testing.T) {
	s := New[int]()
	a, b := 1, 2
	require.NoError(t, s.Put(0, &a))
	require.NoError(t, s.Put(10, &b))

	s.Clear(0)
	require.Nil(t, s.Get(0))
	require.EqualValues(t, 11, s.Size(), "clearing a low index must not shrink size")
}

func TestOverwritePreservesSizeSemantics(t *testing.T) {
	s := New[int]()
	a, b := 1, 2
	require.NoError(t, s.Put(5, &a))
	require.NoError(t, s.Put(5, &b))
	require.Equal(t, 2, *s.Get(5))
	require.EqualValues(t, 6, s.Size())
}

func TestPutRejectsOutOfRangeIndex(t *testing.T) {
	s := New[int]()
	v := 1
	require.Error(t, s.Put(-1, &v))
	require.Error(t, s.Put(1<<20, &v))
}

func TestSparseIndicesSizeAndHoles(t *testing.T) {
	// Mirrors spec.md's "sparse TAG" scenario: indices {0, 5, 1023, 1024,
	// 100000} in one sequence, size() reports the highest index plus one,
	// and every hole in between reads back empty.
	s := New[int]()
	indices := []int32{0, 5, 1023, 1024, 100000}
	for _, idx := range indices {
		v := int(idx)
		require.NoError(t, s.Put(idx, &v))
	}

	require.EqualValues(t, 100001, s.Size())

	present := map[int32]bool{}
	for _, idx := range indices {
		present[idx] = true
	}
	for _, idx := range []int32{1, 2, 500, 1022, 50000, 99999} {
		if !present[idx] {
			require.Nilf(t, s.Get(idx), "hole at %d must read empty", idx)
		}
	}
}

func TestSizeCrossesLeafBoundary(t *testing.T) {
	// LeafSize is 1024; writing exactly at the boundary exercises the
	// rix/lix split and the corrected (rix<<LeafShift)+lix+1 formula.
	s := New[int]()
	v := 1
	require.NoError(t, s.Put(1024, &v)) // rix=1, lix=0
	require.EqualValues(t, 1025, s.Size())

	require.NoError(t, s.Put(2047, &v)) // rix=1, lix=1023
	require.EqualValues(t, 2048, s.Size())
}

func TestDestroyDropsAllLeaves(t *testing.T) {
	s := New[int]()
	v := 1
	require.NoError(t, s.Put(0, &v))
	require.NoError(t, s.Put(100000, &v))
	s.Destroy()
	require.EqualValues(t, 0, s.Size())
	require.Nil(t, s.Get(0))
}
