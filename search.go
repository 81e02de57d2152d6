package polka

// Direction tells Search what to settle for when record n itself does not
// exist. Any other value behaves like Exact.
type Direction byte

const (
	// Exact finds record n or nothing.
	Exact Direction = 'E'
	// Asc settles for the nearest record numbered above n.
	Asc Direction = 'A'
	// Desc settles for the nearest record numbered below n.
	Desc Direction = 'D'
)

func (d Direction) String() string {
	switch d {
	case Exact:
		return "exact"
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	}
	return "invalid"
}

// Get returns record number n if it exists, loading it if need be.
func (m *Map[R]) Get(n int64) (R, bool) {
	return m.Search(n, Exact)
}

// ByID returns the record whose directory is named id, loading it on the
// first call.
func (m *Map[R]) ByID(id string) (R, bool) {
	e, ok := m.loadEntry(id)
	return e.rec, ok
}

func (m *Map[R]) loadEntry(id string) (entry[R], bool) {
	if e, ok := m.cache.Load().getID(id); ok {
		return e, true
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.loadLocked(id)
}

// Search returns record number n, or the nearest record in the given
// direction when n does not exist. Whatever gets loaded along the way
// stays cached, so repeating a search is cheap.
//
// Stages, cheapest first: the cache, the numeric shortcut for n, a
// shortcut neighbor vouched for by the record beside it, and finally a
// binary search across record directory names bracketed by the closest
// already-loaded numbers. Hints that fail to deliver are pruned or
// memoized rather than chased again on the next call.
func (m *Map[R]) Search(n int64, d Direction) (R, bool) {
	var zero R

	if e, ok := m.cache.Load().get(n); ok {
		SearchCount.WithLabelValues(m.dir, "cached").Inc()
		return e.rec, true
	}

	inv := m.inv.Load()
	pos, found := inv.nums.Find(n)
	if found {
		if r, ok := m.loadShortcut(n); ok {
			SearchCount.WithLabelValues(m.dir, "shortcut").Inc()
			return r, true
		}
		// the failed attempt pruned n, recompute against the fresh list
		inv = m.inv.Load()
		pos, found = inv.nums.Find(n)
	}

	if d == Asc || d == Desc {
		// the nearest shortcut on the requested side of n
		adj := pos - 1
		if d == Asc {
			adj = pos
			if found {
				adj = pos + 1
			}
		}
		if inv.nums.InRange(adj) {
			if r, ok := m.Search(inv.nums.At(adj), Exact); ok {
				if m.vouched(r, n, d) {
					SearchCount.WithLabelValues(m.dir, "neighbor").Inc()
					return r, true
				}
				// the hint lied, fall through to the scan
			}
		}
	}

	r, ok := m.scan(n, d)
	if ok {
		SearchCount.WithLabelValues(m.dir, "scan").Inc()
		return r, true
	}
	SearchCount.WithLabelValues(m.dir, "miss").Inc()
	return zero, false
}

// vouched checks that candidate r really is the record nearest to n in
// direction d, by loading the record filed right beside r on n's side of
// it. If that record sits on the far side of n, the two sandwich n and no
// record can come between r and n. A missing record beside r means r is
// the extreme one, which is just as good.
func (m *Map[R]) vouched(r R, n int64, d Direction) bool {
	ids := m.inv.Load().ids
	ipos, ifound := ids.Find(m.src.ID(r))
	var side int
	if d == Asc {
		side = ipos - 1
	} else {
		side = ipos
		if ifound {
			side = ipos + 1
		}
	}
	if !ids.InRange(side) {
		return true
	}
	sid := ids.At(side)
	if m.memo.Contains(sid) {
		// that directory would not load last time, let the scan decide
		return false
	}
	sr, ok := m.ByID(sid)
	return ok && sign(m.src.Number(sr), n)*sign(n, m.src.Number(r)) > 0
}

func sign(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// scan is the slow path: binary-search the record directory names,
// bracketed by the cached records closest to n. Directories that fail to
// load are dropped from the private working list and the probe repeats,
// so a run of corrupt directories cannot derail the search.
func (m *Map[R]) scan(n int64, d Direction) (R, bool) {
	var zero R

	// the probes above may have loaded n already
	snap := m.cache.Load()
	if e, ok := snap.get(n); ok {
		return e.rec, true
	}

	ids := m.inv.Load().ids.Clone()
	if ids.Len() == 0 {
		return zero, false
	}

	// every cached number beside n pins down the id range to try: the
	// answer, if it exists, files strictly between the floor and the
	// ceiling of n
	lo, hi := 0, ids.Len()
	if f, ok := snap.floor(n); ok {
		lo = ids.Higher(f.id)
	}
	if c, ok := snap.ceiling(n); ok {
		hi = ids.Ceil(c.id)
	}

	for lo < hi {
		pivot := (lo + hi) / 2
		e, ok := m.loadEntry(ids.At(pivot))
		if !ok {
			hi--
			ids.RemoveAt(pivot)
			continue
		}
		switch {
		case e.num == n:
			return e.rec, true
		case e.num < n:
			lo = pivot + 1
		default:
			hi = pivot
		}
	}

	// lo == hi is the insertion point for n among the surviving ids
	switch d {
	case Asc:
		if hi < ids.Len() {
			return m.ByID(ids.At(hi))
		}
	case Desc:
		if lo > 0 {
			return m.ByID(ids.At(lo - 1))
		}
	}
	return zero, false
}
