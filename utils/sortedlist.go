package utils

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// Sorted is an ascending list of unique keys. The zero value is an empty
// list ready to use.
//
// Lists handed out to concurrent readers must be treated as frozen:
// Insert and Delete return a fresh list and leave the receiver intact,
// so a published list is only ever replaced, never changed. RemoveAt is
// the one in-place mutator and is meant for private copies (see Clone).
type Sorted[T constraints.Ordered] []T

// NewSorted builds a list from the given keys, sorting and deduplicating.
func NewSorted[T constraints.Ordered](keys ...T) Sorted[T] {
	s := make(Sorted[T], len(keys))
	copy(s, keys)
	slices.Sort(s)
	return slices.Compact(s)
}

func (s Sorted[T]) Len() int {
	return len(s)
}

func (s Sorted[T]) At(i int) T {
	return s[i]
}

// InRange reports whether i is a valid index.
func (s Sorted[T]) InRange(i int) bool {
	return i >= 0 && i < len(s)
}

// Find returns the position of key, or the insertion point if absent.
func (s Sorted[T]) Find(key T) (int, bool) {
	return slices.BinarySearch(s, key)
}

func (s Sorted[T]) Contains(key T) bool {
	_, ok := slices.BinarySearch(s, key)
	return ok
}

// Higher returns the index of the first key strictly greater than key,
// which is len(s) if there is none.
func (s Sorted[T]) Higher(key T) int {
	i, ok := slices.BinarySearch(s, key)
	if ok {
		return i + 1
	}
	return i
}

// Ceil returns the index of the first key greater than or equal to key,
// which is len(s) if there is none.
func (s Sorted[T]) Ceil(key T) int {
	i, _ := slices.BinarySearch(s, key)
	return i
}

// Insert returns a list containing key. The receiver is returned as is
// when the key is already present; otherwise a new list is allocated.
func (s Sorted[T]) Insert(key T) Sorted[T] {
	i, ok := slices.BinarySearch(s, key)
	if ok {
		return s
	}
	next := make(Sorted[T], 0, len(s)+1)
	next = append(next, s[:i]...)
	next = append(next, key)
	next = append(next, s[i:]...)
	return next
}

// Delete returns a list without key. The receiver is returned as is when
// the key is absent; otherwise a new list is allocated.
func (s Sorted[T]) Delete(key T) Sorted[T] {
	i, ok := slices.BinarySearch(s, key)
	if !ok {
		return s
	}
	next := make(Sorted[T], 0, len(s)-1)
	next = append(next, s[:i]...)
	next = append(next, s[i+1:]...)
	return next
}

func (s Sorted[T]) Clone() Sorted[T] {
	return slices.Clone(s)
}

// RemoveAt deletes the key at index i in place. Only call this on a
// private copy; shared lists go through Delete instead.
func (s *Sorted[T]) RemoveAt(i int) {
	*s = slices.Delete(*s, i, i+1)
}
