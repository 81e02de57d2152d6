// Package polka keeps large collections of immutable on-disk records
// addressable as an ordered map without loading them all. Records are
// parsed on first access and cached; both the cache and the directory
// inventory are copy-on-write, so reads never block behind loads.
package polka

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drpcorg/polka/utils"
)

var ErrNoRecords = errors.New("the map holds no records")

type Options struct {
	// Logger receives load failures and inventory diagnostics. Defaults
	// to a text logger on stderr.
	Logger utils.Logger

	// MemoSize bounds the memo of identifiers that recently failed to
	// load, consulted by the neighbor-hint fast path.
	MemoSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.MemoSize <= 0 {
		o.MemoSize = 512
	}
}

// Map is a lazily loaded, number-ordered view over a directory of record
// directories. R is whatever Source parses them into.
//
// Reads work against immutable snapshots published through atomics and
// take no locks; every mutation, including the cache insert behind a
// lazy load, serializes on one mutex and publishes a fresh generation.
type Map[R any] struct {
	dir string
	src Source[R]

	cache atomic.Pointer[snapshot[R]]
	inv   atomic.Pointer[inventory]
	full  atomic.Bool

	// lock covers clone-edit-publish cycles on cache and inv.
	lock sync.Mutex

	// memo remembers identifiers whose directories would not load, so
	// the neighbor probe does not hit the same broken directory on
	// every search. Entries are dropped on any successful load and on
	// Refresh; a search that gets past the probe ignores the memo.
	memo *lru.Cache[string, struct{}]

	log  utils.Logger
	opts Options
}

// Open lists dir once and returns a map with an empty cache. No record
// is parsed yet. A missing dir behaves like an empty one.
func Open[R any](dir string, src Source[R], opts Options) (*Map[R], error) {
	opts.SetDefaults()
	inv, err := scanInventory(dir, src, opts.Logger)
	if err != nil {
		return nil, err
	}
	memo, _ := lru.New[string, struct{}](opts.MemoSize)
	m := &Map[R]{
		dir:  dir,
		src:  src,
		memo: memo,
		log:  opts.Logger,
		opts: opts,
	}
	m.cache.Store(newSnapshot[R]())
	m.inv.Store(inv)
	return m, nil
}

// Dir returns the base directory the map was opened on.
func (m *Map[R]) Dir() string {
	return m.dir
}

// Put files a record in the cache and inventory without touching disk,
// replacing any cached record with the same identifier. It returns that
// record when there was one. Callers persist the directory themselves;
// Put is how freshly written records become visible without a rescan.
func (m *Map[R]) Put(r R) (prev R, replaced bool) {
	id, num := m.src.ID(r), m.src.Number(r)
	m.lock.Lock()
	defer m.lock.Unlock()
	old, ok := m.publish(entry[R]{num: num, id: id, rec: r})
	return old.rec, ok
}

// PutAll files a batch of records, paying for one copy-on-write cycle
// instead of one per record.
func (m *Map[R]) PutAll(rs []R) {
	if len(rs) == 0 {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	next := m.cache.Load().clone()
	ids := make([]string, 0, len(rs))
	nums := make([]int64, 0, len(rs))
	for _, r := range rs {
		id, num := m.src.ID(r), m.src.Number(r)
		next.upsert(entry[R]{num: num, id: id, rec: r})
		ids = append(ids, id)
		nums = append(nums, num)
		m.memo.Remove(id)
	}
	m.cache.Store(next)
	m.inv.Store(m.inv.Load().seenAll(ids, nums))
}

// Remove drops the record from the cache. The inventory keeps its keys:
// a removed record is forgotten, not declared missing, and a later search
// may load it from disk again. Deleting the directory is the caller's
// business.
func (m *Map[R]) Remove(r R) bool {
	id := m.src.ID(r)
	m.lock.Lock()
	defer m.lock.Unlock()
	next := m.cache.Load().clone()
	ok := next.remove(id)
	m.cache.Store(next)
	return ok
}

// Reset throws the cache away and replaces it with exactly the given
// records. The inventory keeps what the last scan found and the
// fully-loaded state stays as is; the inventory is a hint about disk, not
// a mirror of the cache. Meant for hosts that rebuild their view
// wholesale.
func (m *Map[R]) Reset(rs []R) {
	m.lock.Lock()
	defer m.lock.Unlock()
	next := newSnapshot[R]()
	for _, r := range rs {
		id, num := m.src.ID(r), m.src.Number(r)
		next.upsert(entry[R]{num: num, id: id, rec: r})
		m.memo.Remove(id)
	}
	m.cache.Store(next)
}

// Refresh rescans the base directory and publishes the fresh inventory,
// picking up records that appeared behind the map's back. The cache keeps
// every record it already holds.
func (m *Map[R]) Refresh() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	inv, err := scanInventory(m.dir, m.src, m.log)
	if err != nil {
		return err
	}
	if m.full.Load() {
		snap := m.cache.Load()
		for _, id := range inv.ids {
			if _, ok := snap.getID(id); !ok {
				m.log.Warn("record appeared after the map was fully loaded",
					"dir", m.dir, "id", id)
			}
		}
	}
	m.inv.Store(inv)
	m.memo.Purge()
	return nil
}

// publish inserts e into a fresh cache generation and files its keys in
// the inventory. Callers hold m.lock.
func (m *Map[R]) publish(e entry[R]) (prev entry[R], replaced bool) {
	next := m.cache.Load().clone()
	prev, replaced = next.upsert(e)
	m.cache.Store(next)
	m.inv.Store(m.inv.Load().seen(e.id, e.num))
	m.memo.Remove(e.id)
	return prev, replaced
}

// load parses the record directory named id and publishes the result.
func (m *Map[R]) load(id string) (R, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	e, ok := m.loadLocked(id)
	return e.rec, ok
}

func (m *Map[R]) loadLocked(id string) (entry[R], bool) {
	// a concurrent loader may have gotten here first
	if e, ok := m.cache.Load().getID(id); ok {
		return e, true
	}
	dir := filepath.Join(m.dir, id)
	r, err := m.src.Load(dir)
	if err != nil {
		LoadCount.WithLabelValues(m.dir, "fail").Inc()
		m.memo.Add(id, struct{}{})
		m.log.Warn("failed to load record directory", "dir", dir, "error", err)
		return entry[R]{}, false
	}
	LoadCount.WithLabelValues(m.dir, "ok").Inc()
	e := entry[R]{num: m.src.Number(r), id: m.src.ID(r), rec: r}
	m.publish(e)
	if id != e.id {
		m.memo.Remove(id)
	}
	return e, true
}

// loadShortcut resolves the numeric link n and re-verifies that whatever
// it points at really is record number n. Any failure, a dangling link, a
// parse error or a lying target, prunes n from the inventory so no later
// search walks into it again.
func (m *Map[R]) loadShortcut(n int64) (R, bool) {
	var zero R
	m.lock.Lock()
	defer m.lock.Unlock()
	// a concurrent loader may have gotten here first
	if e, ok := m.cache.Load().get(n); ok {
		return e.rec, true
	}
	name := strconv.FormatInt(n, 10)
	dir := filepath.Join(m.dir, name)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		m.pruneShortcut(n, "missing")
		m.log.Debug("no directory behind shortcut", "dir", dir)
		return zero, false
	}
	r, err := m.src.Load(dir)
	if err != nil {
		LoadCount.WithLabelValues(m.dir, "fail").Inc()
		m.pruneShortcut(n, "unloadable")
		m.log.Warn("failed to load record via shortcut", "dir", dir, "error", err)
		return zero, false
	}
	// the record is real either way, keep it
	LoadCount.WithLabelValues(m.dir, "ok").Inc()
	got := m.src.Number(r)
	m.publish(entry[R]{num: got, id: m.src.ID(r), rec: r})
	if got != n {
		m.pruneShortcut(n, "mismatch")
		m.log.Warn("shortcut points at a different record",
			"dir", dir, "expected", n, "actual", got)
		return zero, false
	}
	return r, true
}

func (m *Map[R]) pruneShortcut(n int64, reason string) {
	m.inv.Store(m.inv.Load().dropShortcut(n))
	ShortcutPruneCount.WithLabelValues(m.dir, reason).Inc()
}
