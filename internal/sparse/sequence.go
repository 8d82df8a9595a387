// Package sparse implements the two-level sparse index used to store
// escrowed slots keyed by a small (tag-local) index. It is a direct
// translation of the "struct seq" trie in the original escrowd, generalised
// to a generic element type.
package sparse

import (
	"fmt"

	"github.com/kdalton/escrowd/internal/constants"
)

// Sequence maps [0, constants.MaxIndex) to at most one *T, optimised for the
// common case that only a few scattered ranges of indices are ever written.
// It is a two-level trie: a root array of constants.RootSize pointer cells,
// each either nil or pointing to a dense leaf array of constants.LeafSize
// element pointers. Leaves are allocated lazily on first write and, by
// design, never freed before Destroy: the root array owns them for the
// sequence's whole lifetime, so Go's garbage collector keeps a leaf alive
// for exactly that long without any extra bookkeeping on our part.
//
// The zero value is an empty, ready-to-use sequence.
type Sequence[T any] struct {
	root [constants.RootSize]*[constants.LeafSize]*T
}

// New returns an empty sequence. Equivalent to new(Sequence[T]).
func New[T any]() *Sequence[T] {
	return &Sequence[T]{}
}

func split(idx int32) (rix, lix int32, err error) {
	if idx < 0 || idx >= constants.MaxIndex {
		return 0, 0, fmt.Errorf("sparse: index %d out of range [0, %d)", idx, constants.MaxIndex)
	}
	return idx >> constants.LeafShift, idx & (constants.LeafSize - 1), nil
}

// Put stores val at idx, allocating the backing leaf if this is its first
// write. Any value previously at idx is overwritten without being freed —
// that is the caller's responsibility, per the component contract.
func (s *Sequence[T]) Put(idx int32, val *T) error {
	rix, lix, err := split(idx)
	if err != nil {
		return err
	}
	if s.root[rix] == nil {
		s.root[rix] = new([constants.LeafSize]*T)
	}
	s.root[rix][lix] = val
	return nil
}

// Get returns whatever is stored at idx, or nil if the leaf was never
// allocated or the slot within it was never written (or was cleared).
func (s *Sequence[T]) Get(idx int32) *T {
	rix, lix, err := split(idx)
	if err != nil {
		return nil
	}
	leaf := s.root[rix]
	if leaf == nil {
		return nil
	}
	return leaf[lix]
}

// Clear empties the slot at idx. A no-op if the leaf was never allocated.
// It does not shrink the sequence or free the leaf.
func (s *Sequence[T]) Clear(idx int32) {
	rix, lix, err := split(idx)
	if err != nil {
		return
	}
	if leaf := s.root[rix]; leaf != nil {
		leaf[lix] = nil
	}
}

// Size returns the maximum populated index plus one, or 0 if the sequence
// is empty. Holes below the maximum are permitted and invisible here.
//
// This uses (rix << LeafShift) + lix + 1, not (rix << RootShift) + lix + 1:
// the latter is what the original C implementation computes, a bug (it
// addresses the tree with LeafShift everywhere else) this package does not
// reproduce.
func (s *Sequence[T]) Size() int32 {
	for rix := constants.RootSize - 1; rix >= 0; rix-- {
		leaf := s.root[rix]
		if leaf == nil {
			continue
		}
		for lix := constants.LeafSize - 1; lix >= 0; lix-- {
			if leaf[lix] != nil {
				return (int32(rix) << constants.LeafShift) + int32(lix) + 1
			}
		}
	}
	return 0
}

// Destroy releases every leaf. The caller must have already destroyed any
// resources reachable through the stored values — Destroy only drops the
// sequence's own references to them.
func (s *Sequence[T]) Destroy() {
	for i := range s.root {
		s.root[i] = nil
	}
}
