// Package store holds the daemon's escrowed slots: one sparse.Sequence per
// tag, each entry an OwnedFD plus its payload. It is the Go counterpart of
// escrow.c's struct slot / struct tag / struct escrowd's tags array,
// generalised over sparse.Sequence[Slot] and with explicit ownership
// tracking in place of the original's bare "close(s->fd)".
package store

import (
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/kdalton/escrowd/internal/sparse"
)

// OwnedFD wraps a file descriptor this process holds a dup of, with an
// idempotent Close so the same slot can be closed from both a DEL handler
// and a later Destroy without double-closing the fd.
type OwnedFD struct {
	fd     int
	closed atomic.Bool
}

// NewOwnedFD takes ownership of fd, or of nothing at all if fd is negative
// (the payload-only sentinel, original_source/escrow.h: "it is possible to
// store and retrieve payload only without a file descriptor, by providing
// (-1) as FD argument"). The caller must not close fd itself afterward.
func NewOwnedFD(fd int) *OwnedFD {
	return &OwnedFD{fd: fd}
}

// FD returns the underlying descriptor, or a negative value if this slot
// carries no descriptor. It stays valid until Close runs.
func (o *OwnedFD) FD() int {
	return o.fd
}

// Close closes the descriptor exactly once, regardless of how many times
// it is called. A negative descriptor (no descriptor was ever stored) is a
// no-op rather than an EBADF.
func (o *OwnedFD) Close() error {
	if o.closed.Swap(true) || o.fd < 0 {
		return nil
	}
	return unix.Close(o.fd)
}

// Slot is one escrowed (descriptor, payload) pair, keyed by (tag, idx) in
// its owning Tag.
type Slot struct {
	FD   *OwnedFD
	Ufd  int32
	Data []byte
}

// Close releases the slot's descriptor. It does not mutate the Tag the
// slot came from — callers remove it from the sequence separately (see
// Tag.Delete, Tag.Put).
func (s *Slot) Close() error {
	if s == nil || s.FD == nil {
		return nil
	}
	return s.FD.Close()
}

// Tag is one of a daemon's fixed set of namespaces, a sparse index from
// slot index to *Slot.
type Tag struct {
	seq *sparse.Sequence[Slot]
}

func newTag() *Tag {
	return &Tag{seq: sparse.New[Slot]()}
}

// Get returns the slot at idx, or nil if none is present.
func (t *Tag) Get(idx int32) *Slot {
	return t.seq.Get(idx)
}

// Put installs slot at idx, closing and discarding whatever was there
// before — mirrors escrow.c's add(): "if (s != NULL) slot_fini(s)" before
// installing the new one. The new slot is installed even if closing the
// old one fails; that close error is then returned.
func (t *Tag) Put(idx int32, slot *Slot) error {
	var closeErr error
	if old := t.seq.Get(idx); old != nil {
		if err := old.Close(); err != nil {
			closeErr = fmt.Errorf("store: closing slot being overwritten at %d: %w", idx, err)
		}
	}
	if err := t.seq.Put(idx, slot); err != nil {
		return err
	}
	return closeErr
}

// Delete removes and closes the slot at idx. It reports whether a slot was
// actually present.
func (t *Tag) Delete(idx int32) (found bool, err error) {
	old := t.seq.Get(idx)
	if old == nil {
		return false, nil
	}
	t.seq.Clear(idx)
	return true, old.Close()
}

// Stats reports the aggregate view a TAG query returns: nr is the maximum
// populated index plus one (the sequence's Size, holes included), total is
// the sum of payload lengths over every slot present.
func (t *Tag) Stats() (nr, total int32) {
	nr = t.seq.Size()
	for i := int32(0); i < nr; i++ {
		if s := t.seq.Get(i); s != nil {
			total += int32(len(s.Data))
		}
	}
	return nr, total
}

// Destroy closes every slot still present in the tag. Unlike the original
// escrowd_fini, which iterated seq_get(s, i) using the outer tag-loop
// index instead of the inner slot index (closing slot 0 of every tag
// max(seq_nr) times instead of every slot once), this walks the tag's own
// index range.
func (t *Tag) Destroy() error {
	var result *multierror.Error
	max := t.seq.Size()
	for i := int32(0); i < max; i++ {
		if s := t.seq.Get(i); s != nil {
			if err := s.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("slot %d: %w", i, err))
			}
		}
	}
	t.seq.Destroy()
	return result.ErrorOrNil()
}

// Store is the full set of tags a daemon instance manages.
type Store struct {
	tags []*Tag
}

// New allocates a Store with nrTags empty tags.
func New(nrTags int) *Store {
	tags := make([]*Tag, nrTags)
	for i := range tags {
		tags[i] = newTag()
	}
	return &Store{tags: tags}
}

// NrTags returns the number of tags the store was created with.
func (s *Store) NrTags() int {
	return len(s.tags)
}

// Tag returns the tag at index i, or (nil, false) if i is out of range.
func (s *Store) Tag(i int) (*Tag, bool) {
	if i < 0 || i >= len(s.tags) {
		return nil, false
	}
	return s.tags[i], true
}

// Destroy tears down every tag, aggregating any close errors rather than
// stopping at the first one — a leaked descriptor in one tag must not hide
// leaks in the rest.
func (s *Store) Destroy() error {
	var result *multierror.Error
	for i, t := range s.tags {
		if err := t.Destroy(); err != nil {
			result = multierror.Append(result, fmt.Errorf("tag %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}
