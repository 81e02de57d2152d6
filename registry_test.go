package polka

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/polka/utils"
)

func TestRegistryDedupesOpens(t *testing.T) {
	dir, _, _ := testShelf(t, 1)
	reg := NewRegistry(newTestSource(), Options{Logger: utils.NopLogger{}})

	const K = 8
	maps := make([]*Map[*testRec], K)
	var wg sync.WaitGroup
	for i := 0; i < K; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := reg.Open(dir)
			assert.NoError(t, err)
			maps[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < K; i++ {
		assert.Same(t, maps[0], maps[i], "one map per directory")
	}
	assert.Equal(t, 1, reg.Len())

	peeked, ok := reg.Peek(dir)
	require.True(t, ok)
	assert.Same(t, maps[0], peeked)
	_, ok = reg.Peek("elsewhere")
	assert.False(t, ok)
}

func TestRegistryManyDirs(t *testing.T) {
	reg := NewRegistry(newTestSource(), Options{Logger: utils.NopLogger{}})

	a, err := reg.Open(t.TempDir())
	require.NoError(t, err)
	b, err := reg.Open(t.TempDir())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())

	seen := map[string]bool{}
	reg.Range(func(dir string, m *Map[*testRec]) bool {
		seen[dir] = true
		return true
	})
	assert.Len(t, seen, 2)

	reg.Drop(a.Dir())
	assert.Equal(t, 1, reg.Len())
	reopened, err := reg.Open(a.Dir())
	require.NoError(t, err)
	assert.NotSame(t, a, reopened, "a dropped directory is rescanned from scratch")
}
