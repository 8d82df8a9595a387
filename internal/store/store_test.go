package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipeFD(t *testing.T) (readFD int, ownedWrite *OwnedFD) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return int(r.Fd()), NewOwnedFD(dupFD(t, w))
}

// dupFD hands the test a descriptor it can own independently of os.File's
// own finalizer-driven close.
func dupFD(t *testing.T, f *os.File) int {
	t.Helper()
	fd, err := unix.Dup(int(f.Fd()))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return fd
}

func TestOwnedFDCloseIsIdempotent(t *testing.T) {
	_, owned := newPipeFD(t)
	require.NoError(t, owned.Close())
	require.NoError(t, owned.Close())
}

func TestTagPutGetDelete(t *testing.T) {
	tag := newTag()
	_, owned := newPipeFD(t)
	slot := &Slot{FD: owned, Ufd: 3, Data: []byte("hi")}

	require.NoError(t, tag.Put(5, slot))
	require.Equal(t, slot, tag.Get(5))

	found, err := tag.Delete(5)
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, tag.Get(5))

	found, err = tag.Delete(5)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTagPutOverwriteClosesOldSlot(t *testing.T) {
	tag := newTag()
	_, first := newPipeFD(t)
	_, second := newPipeFD(t)

	require.NoError(t, tag.Put(0, &Slot{FD: first, Data: []byte("a")}))
	require.NoError(t, tag.Put(0, &Slot{FD: second, Data: []byte("b")}))

	require.True(t, first.closed.Load())
	require.Equal(t, []byte("b"), tag.Get(0).Data)
}

func TestTagStats(t *testing.T) {
	tag := newTag()
	_, a := newPipeFD(t)
	_, b := newPipeFD(t)

	require.NoError(t, tag.Put(0, &Slot{FD: a, Data: make([]byte, 10)}))
	require.NoError(t, tag.Put(1023, &Slot{FD: b, Data: make([]byte, 5)}))

	nr, total := tag.Stats()
	require.EqualValues(t, 1024, nr)
	require.EqualValues(t, 15, total)
}

func TestTagDestroyClosesEverySlotExactlyOnce(t *testing.T) {
	tag := newTag()
	_, a := newPipeFD(t)
	_, b := newPipeFD(t)

	require.NoError(t, tag.Put(0, &Slot{FD: a}))
	require.NoError(t, tag.Put(50000, &Slot{FD: b}))

	require.NoError(t, tag.Destroy())
	require.True(t, a.closed.Load())
	require.True(t, b.closed.Load())
}

func TestStoreDestroyAggregatesAcrossTags(t *testing.T) {
	s := New(4)
	require.Equal(t, 4, s.NrTags())

	_, a := newPipeFD(t)
	tag0, ok := s.Tag(0)
	require.True(t, ok)
	require.NoError(t, tag0.Put(0, &Slot{FD: a}))

	_, missing := s.Tag(99)
	require.False(t, missing)

	require.NoError(t, s.Destroy())
	require.True(t, a.closed.Load())
}
