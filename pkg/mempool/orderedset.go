package mempool

import (
	"container/list"

	"github.com/ethereum/go-ethereum/common"
)

// orderedSet is a hash-indexed, insertion-ordered collection. It backs each
// of the mempool's four sets: a doubly-linked list preserves admission
// order for Dump, while the hash index gives O(1) Remove/Has instead of the
// linear scan a plain slice would need (see SPEC_FULL.md §4.1).
type orderedSet[T any] struct {
	list   *list.List
	index  map[common.Hash]*list.Element
	hashOf func(T) common.Hash
}

func newOrderedSet[T any](hashOf func(T) common.Hash) *orderedSet[T] {
	return &orderedSet[T]{
		list:   list.New(),
		index:  make(map[common.Hash]*list.Element),
		hashOf: hashOf,
	}
}

// add appends v. If its hash already exists, the caller is responsible for
// having decided whether that's acceptable; add always appends and
// re-indexes, mirroring the upstream deduplication-is-the-caller's-job
// contract (see Mempool.AddOutstanding).
func (s *orderedSet[T]) add(v T) {
	e := s.list.PushBack(v)
	s.index[s.hashOf(v)] = e
}

// has reports whether a value with the given hash is present.
func (s *orderedSet[T]) has(h common.Hash) bool {
	_, ok := s.index[h]
	return ok
}

// remove deletes the entry with the given hash, returning it and true if
// present.
func (s *orderedSet[T]) remove(h common.Hash) (T, bool) {
	e, ok := s.index[h]
	if !ok {
		var zero T
		return zero, false
	}
	s.list.Remove(e)
	delete(s.index, h)
	return e.Value.(T), true
}

// dump returns a copy of all values in admission order.
func (s *orderedSet[T]) dump() []T {
	out := make([]T, 0, s.list.Len())
	for e := s.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	return out
}

// clear removes all entries.
func (s *orderedSet[T]) clear() {
	s.list.Init()
	for k := range s.index {
		delete(s.index, k)
	}
}

// len reports the number of entries.
func (s *orderedSet[T]) len() int {
	return s.list.Len()
}
