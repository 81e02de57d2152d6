package polka

import (
	"iter"
	"math"
	"path/filepath"
)

// Loaded walks the records already in memory, newest first, without
// touching disk. The walk is over the cache generation current at the
// call; loads and puts that happen later do not leak in.
func (m *Map[R]) Loaded() iter.Seq2[int64, R] {
	snap := m.cache.Load()
	return func(yield func(int64, R) bool) {
		snap.descend(func(e entry[R]) bool {
			return yield(e.num, e.rec)
		})
	}
}

// LoadedCount returns how many records are in memory right now.
func (m *Map[R]) LoadedCount() int {
	return m.cache.Load().len()
}

// Len returns how many record directories the inventory knows about,
// loaded or not.
func (m *Map[R]) Len() int {
	return m.inv.Load().ids.Len()
}

// All materializes every record the inventory knows about and walks them
// newest first. The first call pays for loading everything; after the
// fully-loaded latch is set, All costs the same as Loaded.
func (m *Map[R]) All() iter.Seq2[int64, R] {
	m.materialize()
	return m.Loaded()
}

// materialize loads every inventoried directory not in the cache yet.
// Double-checked around the latch so concurrent callers do one scan
// between them and the common case stays lock-free.
func (m *Map[R]) materialize() {
	if m.full.Load() {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.full.Load() {
		return
	}
	inv := m.inv.Load()
	next := m.cache.Load().clone()
	var nums []int64
	for _, id := range inv.ids {
		if _, ok := next.getID(id); ok {
			continue
		}
		dir := filepath.Join(m.dir, id)
		r, err := m.src.Load(dir)
		if err != nil {
			LoadCount.WithLabelValues(m.dir, "fail").Inc()
			m.log.Warn("failed to load record directory", "dir", dir, "error", err)
			continue
		}
		LoadCount.WithLabelValues(m.dir, "ok").Inc()
		next.upsert(entry[R]{num: m.src.Number(r), id: m.src.ID(r), rec: r})
		nums = append(nums, m.src.Number(r))
		m.memo.Remove(id)
	}
	m.cache.Store(next)
	m.inv.Store(inv.seenAll(nil, nums))
	m.full.Store(true)
}

// Newest returns the record with the highest number, if any.
func (m *Map[R]) Newest() (R, bool) {
	return m.Search(math.MaxInt64, Desc)
}

// Oldest returns the record with the lowest number, if any.
func (m *Map[R]) Oldest() (R, bool) {
	return m.Search(math.MinInt64, Asc)
}

// FirstKey returns the highest record number. It returns ErrNoRecords
// when there is nothing to number.
func (m *Map[R]) FirstKey() (int64, error) {
	r, ok := m.Newest()
	if !ok {
		return 0, ErrNoRecords
	}
	return m.src.Number(r), nil
}

// LastKey returns the lowest record number. It returns ErrNoRecords when
// there is nothing to number.
func (m *Map[R]) LastKey() (int64, error) {
	r, ok := m.Oldest()
	if !ok {
		return 0, ErrNoRecords
	}
	return m.src.Number(r), nil
}

// IsEmpty reports whether the map holds no records at all, probing disk
// if the cache alone cannot tell.
func (m *Map[R]) IsEmpty() bool {
	if m.cache.Load().len() > 0 {
		return false
	}
	_, ok := m.Newest()
	return !ok
}

// Range walks records numbered from down to but not including to, newest
// first. Both boundaries are resolved by search, so from and to need not
// exist themselves; an empty window stays empty. The walk materializes
// every record it covers, one search per number, which makes Range cost
// O(window) loads the first time over.
func (m *Map[R]) Range(from, to int64) iter.Seq2[int64, R] {
	empty := func(yield func(int64, R) bool) {}
	if from < to {
		return empty
	}
	start, ok := m.Search(from, Desc)
	if !ok {
		return empty
	}
	end, ok := m.Search(to, Asc)
	if !ok {
		return empty
	}

	endNum := m.src.Number(end)
	for cur := m.src.Number(start); cur > endNum; {
		r, ok := m.Search(cur-1, Desc)
		if !ok {
			break
		}
		cur = m.src.Number(r)
	}

	snap := m.cache.Load()
	return func(yield func(int64, R) bool) {
		snap.descendRange(from, to, func(e entry[R]) bool {
			return yield(e.num, e.rec)
		})
	}
}

// Head walks every record numbered above to, newest first.
func (m *Map[R]) Head(to int64) iter.Seq2[int64, R] {
	return m.Range(math.MaxInt64, to)
}

// Tail walks every record from from down to the oldest, newest first.
func (m *Map[R]) Tail(from int64) iter.Seq2[int64, R] {
	return m.Range(from, math.MinInt64)
}
