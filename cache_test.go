package polka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryOf(n int64) entry[*testRec] {
	return entry[*testRec]{num: n, id: testID(n), rec: &testRec{id: testID(n), num: n}}
}

func TestSnapshotUpsertKeepsViewsCoherent(t *testing.T) {
	s := newSnapshot[*testRec]()
	s.upsert(entryOf(1))
	s.upsert(entryOf(2))

	// the same number arrives under a new identifier
	s.upsert(entry[*testRec]{num: 2, id: "zz-later", rec: &testRec{id: "zz-later", num: 2}})
	assert.Equal(t, 2, s.len())
	_, ok := s.getID(testID(2))
	assert.False(t, ok, "the displaced identifier leaves the id view")
	e, ok := s.get(2)
	require.True(t, ok)
	assert.Equal(t, "zz-later", e.id)

	// the same identifier arrives under a new number
	s.upsert(entry[*testRec]{num: 9, id: "zz-later", rec: &testRec{id: "zz-later", num: 9}})
	assert.Equal(t, 2, s.len())
	_, ok = s.get(2)
	assert.False(t, ok, "the displaced number leaves the number view")
	e, ok = s.getID("zz-later")
	require.True(t, ok)
	assert.Equal(t, int64(9), e.num)

	assert.Equal(t, s.byNumber.Len(), s.byID.Len())
}

func TestSnapshotCeilingFloor(t *testing.T) {
	s := newSnapshot[*testRec]()
	for _, n := range []int64{10, 20, 30} {
		s.upsert(entryOf(n))
	}

	e, ok := s.ceiling(15)
	require.True(t, ok)
	assert.Equal(t, int64(20), e.num)
	e, ok = s.ceiling(20)
	require.True(t, ok)
	assert.Equal(t, int64(20), e.num)
	_, ok = s.ceiling(31)
	assert.False(t, ok)

	e, ok = s.floor(15)
	require.True(t, ok)
	assert.Equal(t, int64(10), e.num)
	e, ok = s.floor(10)
	require.True(t, ok)
	assert.Equal(t, int64(10), e.num)
	_, ok = s.floor(9)
	assert.False(t, ok)
}

func TestSnapshotCloneIsIsolated(t *testing.T) {
	s := newSnapshot[*testRec]()
	s.upsert(entryOf(1))

	c := s.clone()
	c.upsert(entryOf(2))
	c.remove(testID(1))

	assert.Equal(t, 1, s.len())
	_, ok := s.get(1)
	assert.True(t, ok)
	_, ok = s.get(2)
	assert.False(t, ok)

	assert.Equal(t, 1, c.len())
	_, ok = c.get(2)
	assert.True(t, ok)
	_, ok = c.get(1)
	assert.False(t, ok)
}

func TestSnapshotRemove(t *testing.T) {
	s := newSnapshot[*testRec]()
	s.upsert(entryOf(5))

	assert.False(t, s.remove("unknown"))
	assert.True(t, s.remove(testID(5)))
	assert.Equal(t, 0, s.len())
	_, ok := s.get(5)
	assert.False(t, ok)
}

func TestSnapshotDescendRange(t *testing.T) {
	s := newSnapshot[*testRec]()
	for n := int64(1); n <= 5; n++ {
		s.upsert(entryOf(n))
	}

	var nums []int64
	s.descendRange(4, 1, func(e entry[*testRec]) bool {
		nums = append(nums, e.num)
		return true
	})
	assert.Equal(t, []int64{4, 3, 2}, nums)
}
