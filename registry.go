package polka

import (
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// Registry hands out one Map per base directory, so every part of a host
// that looks at the same shelf shares one cache and one inventory.
type Registry[R any] struct {
	src  Source[R]
	opts Options
	maps *xsync.MapOf[string, *Map[R]]
	open singleflight.Group
}

func NewRegistry[R any](src Source[R], opts Options) *Registry[R] {
	return &Registry[R]{
		src:  src,
		opts: opts,
		maps: xsync.NewMapOf[string, *Map[R]](),
	}
}

// Open returns the map for dir, scanning the directory on first use.
// Concurrent callers share one scan; a failed scan is not cached, so the
// next call retries.
func (g *Registry[R]) Open(dir string) (*Map[R], error) {
	if m, ok := g.maps.Load(dir); ok {
		return m, nil
	}
	v, err, _ := g.open.Do(dir, func() (interface{}, error) {
		if m, ok := g.maps.Load(dir); ok {
			return m, nil
		}
		m, err := Open(dir, g.src, g.opts)
		if err != nil {
			return nil, err
		}
		g.maps.Store(dir, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Map[R]), nil
}

// Peek returns the map for dir only if it is already open.
func (g *Registry[R]) Peek(dir string) (*Map[R], bool) {
	return g.maps.Load(dir)
}

// Drop forgets the map for dir. The next Open rescans from scratch.
func (g *Registry[R]) Drop(dir string) {
	g.maps.Delete(dir)
}

// Range visits every open map until f returns false.
func (g *Registry[R]) Range(f func(dir string, m *Map[R]) bool) {
	g.maps.Range(f)
}

func (g *Registry[R]) Len() int {
	return g.maps.Size()
}
