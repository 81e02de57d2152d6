package bench_test

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cockroachdb/pebble"

	"github.com/drpcorg/polka"
	"github.com/drpcorg/polka/rec"
	"github.com/drpcorg/polka/utils"
)

const shelfSize = 1000
const bodySize = 512

func prepareShelf(b *testing.B) string {
	b.Helper()
	dir := b.TempDir()
	shelf, err := rec.OpenArchive(dir, rec.ArchiveOptions{Logger: utils.NopLogger{}})
	if err != nil {
		b.Fatalf("open shelf: %v", err)
	}
	body := make([]byte, bodySize)
	for i := 0; i < shelfSize; i++ {
		rand.Read(body)
		if _, err := shelf.Append(body, fmt.Sprintf("record %d", i)); err != nil {
			b.Fatalf("append: %v", err)
		}
	}
	return dir
}

func openMap(b *testing.B, dir string) *polka.Map[*rec.Rec] {
	b.Helper()
	m, err := rec.Map(dir, polka.Options{Logger: utils.NopLogger{}})
	if err != nil {
		b.Fatalf("open map: %v", err)
	}
	return m
}

func preparePebble(b *testing.B) *pebble.DB {
	b.Helper()
	db, err := pebble.Open(b.TempDir(), &pebble.Options{})
	if err != nil {
		b.Fatalf("open pebble: %v", err)
	}
	body := make([]byte, bodySize)
	var key [8]byte
	for i := 1; i <= shelfSize; i++ {
		rand.Read(body)
		binary.BigEndian.PutUint64(key[:], uint64(i))
		if err := db.Set(key[:], body, pebble.NoSync); err != nil {
			b.Fatalf("set: %v", err)
		}
	}
	b.Cleanup(func() { _ = db.Close() })
	return db
}

// Random exact lookups against a cold map: the first hit on each number
// pays for a directory load, later hits come from the cache.
func BenchmarkMapGetCold(b *testing.B) {
	dir := prepareShelf(b)
	m := openMap(b, dir)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := int64(rand.Intn(shelfSize) + 1)
		if _, ok := m.Get(n); !ok {
			b.Fatalf("lost record #%d", n)
		}
	}
}

// Random exact lookups with everything materialized up front.
func BenchmarkMapGetWarm(b *testing.B) {
	dir := prepareShelf(b)
	m := openMap(b, dir)
	for range m.All() {
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := int64(rand.Intn(shelfSize) + 1)
		if _, ok := m.Get(n); !ok {
			b.Fatalf("lost record #%d", n)
		}
	}
}

// Directional searches landing between records, the worst case for the
// hint machinery.
func BenchmarkMapSearchDesc(b *testing.B) {
	dir := prepareShelf(b)
	m := openMap(b, dir)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := int64(rand.Intn(shelfSize*2) + 1)
		m.Search(n, polka.Desc)
	}
}

// The same random reads out of a pebble store, as a point of reference
// for what a real LSM gets on this access pattern.
func BenchmarkPebbleGet(b *testing.B) {
	db := preparePebble(b)
	var key [8]byte
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key[:], uint64(rand.Intn(shelfSize)+1))
		val, closer, err := db.Get(key[:])
		if err != nil {
			b.Fatalf("get: %v", err)
		}
		_ = val
		_ = closer.Close()
	}
}
