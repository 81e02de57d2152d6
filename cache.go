package polka

import (
	"github.com/google/btree"
)

const indexDegree = 16

// entry pairs a materialized record with both of its keys so that one
// btree item type serves the number view and the identifier view.
type entry[R any] struct {
	num int64
	id  string
	rec R
}

// snapshot is one frozen generation of the loaded-record index: the same
// record set ordered by number and by identifier. A published snapshot is
// never mutated; writers clone it, edit the clone and publish that, so
// readers can walk a snapshot without any locking.
type snapshot[R any] struct {
	byNumber *btree.BTreeG[entry[R]]
	byID     *btree.BTreeG[entry[R]]
}

func newSnapshot[R any]() *snapshot[R] {
	return &snapshot[R]{
		byNumber: btree.NewG(indexDegree, func(a, b entry[R]) bool { return a.num < b.num }),
		byID:     btree.NewG(indexDegree, func(a, b entry[R]) bool { return a.id < b.id }),
	}
}

// clone is cheap: both trees copy lazily on first write.
func (s *snapshot[R]) clone() *snapshot[R] {
	return &snapshot[R]{
		byNumber: s.byNumber.Clone(),
		byID:     s.byID.Clone(),
	}
}

func (s *snapshot[R]) len() int {
	return s.byID.Len()
}

func (s *snapshot[R]) get(n int64) (entry[R], bool) {
	return s.byNumber.Get(entry[R]{num: n})
}

func (s *snapshot[R]) getID(id string) (entry[R], bool) {
	return s.byID.Get(entry[R]{id: id})
}

// ceiling returns the loaded entry with the smallest number >= n.
func (s *snapshot[R]) ceiling(n int64) (e entry[R], ok bool) {
	s.byNumber.AscendGreaterOrEqual(entry[R]{num: n}, func(item entry[R]) bool {
		e, ok = item, true
		return false
	})
	return
}

// floor returns the loaded entry with the largest number <= n.
func (s *snapshot[R]) floor(n int64) (e entry[R], ok bool) {
	s.byNumber.DescendLessOrEqual(entry[R]{num: n}, func(item entry[R]) bool {
		e, ok = item, true
		return false
	})
	return
}

// upsert stores e in both views and evicts whatever previously held its
// number or its identifier, keeping the two views over the same set.
// It returns the entry that was filed under the same identifier, if any.
func (s *snapshot[R]) upsert(e entry[R]) (prev entry[R], replaced bool) {
	if old, ok := s.byNumber.ReplaceOrInsert(e); ok && old.id != e.id {
		s.byID.Delete(entry[R]{id: old.id})
	}
	old, ok := s.byID.ReplaceOrInsert(e)
	if ok && old.num != e.num {
		s.byNumber.Delete(entry[R]{num: old.num})
	}
	return old, ok
}

// remove drops the record filed under id from both views. The number the
// stored entry carries wins over the one the caller passed.
func (s *snapshot[R]) remove(id string) bool {
	old, ok := s.byID.Delete(entry[R]{id: id})
	if !ok {
		return false
	}
	s.byNumber.Delete(entry[R]{num: old.num})
	return true
}

// descend walks entries newest to oldest.
func (s *snapshot[R]) descend(f func(entry[R]) bool) {
	s.byNumber.Descend(f)
}

// descendRange walks entries with from >= number > to, newest first.
func (s *snapshot[R]) descendRange(from, to int64, f func(entry[R]) bool) {
	s.byNumber.DescendRange(entry[R]{num: from}, entry[R]{num: to}, f)
}
