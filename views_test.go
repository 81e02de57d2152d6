package polka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/polka/utils"
)

func TestAllMaterializesOnce(t *testing.T) {
	_, src, m := testShelf(t, 1, 2, 3, 4, 5)

	assert.Equal(t, []int64{5, 4, 3, 2, 1}, collectNums(m.All()))
	loads := src.loadCount()
	assert.Equal(t, 5, loads)

	// the latch holds: the second walk costs no disk at all
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, collectNums(m.All()))
	assert.Equal(t, loads, src.loadCount())
}

func TestAllSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	plantRecord(t, dir, 1)
	breakRecord(t, dir, 2)
	plantRecord(t, dir, 3)
	src := newTestSource()
	m, err := Open(dir, src, Options{Logger: utils.NopLogger{}})
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 1}, collectNums(m.All()))
	assert.Equal(t, 2, m.LoadedCount())
}

func TestAllKeepsLoadedRecords(t *testing.T) {
	_, src, m := testShelf(t, 1, 2, 3)
	r, ok := m.Get(2)
	require.True(t, ok)

	assert.Equal(t, []int64{3, 2, 1}, collectNums(m.All()))
	// record 2 was in memory already and is not parsed twice
	assert.Equal(t, 1, src.loadCount("2")+src.loadCount(testID(2)))
	again, ok := m.Get(2)
	require.True(t, ok)
	assert.Same(t, r, again)
}

func TestLoadedIsPassive(t *testing.T) {
	_, src, m := testShelf(t, 1, 2)

	assert.Empty(t, collectNums(m.Loaded()))
	assert.Zero(t, src.loadCount())

	_, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, collectNums(m.Loaded()))
	assert.Equal(t, 1, src.loadCount())
}

func TestRangeWindow(t *testing.T) {
	_, _, m := testShelf(t, 10, 9, 8, 7, 6)
	assert.Equal(t, []int64{9, 8}, collectNums(m.Range(9, 7)))
}

func TestRangeOverGaps(t *testing.T) {
	_, _, m := testShelf(t, 1, 3, 5, 7)

	assert.Equal(t, []int64{5, 3}, collectNums(m.Range(6, 2)))
	assert.Equal(t, []int64{7, 5, 3}, collectNums(m.Range(7, 2)))
	assert.Empty(t, collectNums(m.Range(2, 6)), "inverted window")
	assert.Empty(t, collectNums(m.Range(0, -4)), "below the oldest")
	assert.Empty(t, collectNums(m.Range(20, 8)), "above the newest")
}

func TestRangeMaterializesTheWindow(t *testing.T) {
	_, _, m := testShelf(t, 6, 7, 8, 9, 10)
	collectNums(m.Range(9, 7))

	// other code leans on walked-over records being cache-resident
	for _, n := range []int64{9, 8, 7} {
		_, ok := m.cache.Load().getID(testID(n))
		assert.True(t, ok, "record #%d", n)
	}
}

func TestHeadAndTail(t *testing.T) {
	_, _, m := testShelf(t, 1, 3, 5, 7)
	assert.Equal(t, []int64{7, 5}, collectNums(m.Head(3)))
	assert.Equal(t, []int64{5, 3, 1}, collectNums(m.Tail(5)))
}

func TestBoundaryKeys(t *testing.T) {
	_, _, m := testShelf(t, 2, 4, 6)

	first, err := m.FirstKey()
	require.NoError(t, err)
	assert.Equal(t, int64(6), first)
	last, err := m.LastKey()
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	newest, ok := m.Newest()
	require.True(t, ok)
	assert.Equal(t, int64(6), newest.num)
	oldest, ok := m.Oldest()
	require.True(t, ok)
	assert.Equal(t, int64(2), oldest.num)
}

func TestEmptiness(t *testing.T) {
	_, _, m := testShelf(t)

	assert.True(t, m.IsEmpty())
	_, err := m.FirstKey()
	assert.ErrorIs(t, err, ErrNoRecords)
	_, err = m.LastKey()
	assert.ErrorIs(t, err, ErrNoRecords)
	_, ok := m.Newest()
	assert.False(t, ok)
	_, ok = m.Oldest()
	assert.False(t, ok)
	assert.Empty(t, collectNums(m.All()))

	// not empty once anything is on disk, cached or not
	_, _, m2 := testShelf(t, 1)
	assert.Equal(t, 0, m2.LoadedCount())
	assert.False(t, m2.IsEmpty())
}

func TestCountsAreAdvisory(t *testing.T) {
	_, _, m := testShelf(t, 1, 2, 3)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 0, m.LoadedCount())
	_, ok := m.Get(2)
	require.True(t, ok)
	assert.Equal(t, 1, m.LoadedCount())
	assert.Equal(t, 3, m.Len())
}
