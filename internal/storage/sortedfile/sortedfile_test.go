package sortedfile

import (
	"encoding/binary"
	"testing"

	"github.com/barrowdb/barrow/internal/storage/page"
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/stg"
)

const testRecSize = 8

type intRecord uint64

func (r intRecord) Compare(data []byte) int {
	stored := binary.BigEndian.Uint64(data)
	switch {
	case uint64(r) < stored:
		return -1
	case uint64(r) > stored:
		return 1
	default:
		return 0
	}
}

func (r intRecord) Save(dst []byte) { binary.BigEndian.PutUint64(dst, uint64(r)) }

func loadInt(data []byte) Record {
	return intRecord(binary.BigEndian.Uint64(data))
}

func newTestFile(t *testing.T) *SortedFile {
	t.Helper()
	shared := pager.New(stg.NewMemory())
	access := shared.OpenWrite()
	return Open(access, 0, testRecSize, loadInt)
}

func TestInsertGetRoundTrip(t *testing.T) {
	sf := newTestFile(t)
	for _, k := range []uint64{10, 3, 7, 1, 5} {
		if !sf.Insert(intRecord(k)) {
			t.Fatalf("Insert(%d) unexpectedly reported a duplicate", k)
		}
	}
	got := sf.Get(intRecord(7))
	if got == nil || got.(intRecord) != 7 {
		t.Fatalf("Get(7) = %v, want 7", got)
	}
	if sf.Get(intRecord(999)) != nil {
		t.Fatal("Get for an absent key should return nil")
	}
}

func TestInsertDuplicateIsNoOp(t *testing.T) {
	sf := newTestFile(t)
	sf.Insert(intRecord(1))
	if sf.Insert(intRecord(1)) {
		t.Fatal("expected duplicate insert to return false")
	}
}

func TestRemove(t *testing.T) {
	sf := newTestFile(t)
	sf.Insert(intRecord(1))
	sf.Insert(intRecord(2))
	if !sf.Remove(intRecord(1)) {
		t.Fatal("expected Remove(1) to succeed")
	}
	if sf.Get(intRecord(1)) != nil {
		t.Fatal("key 1 should be gone after Remove")
	}
	if sf.Remove(intRecord(1)) {
		t.Fatal("removing an already-removed key should return false")
	}
}

func TestAscDscOrdering(t *testing.T) {
	sf := newTestFile(t)
	keys := []uint64{5, 1, 4, 2, 3}
	for _, k := range keys {
		sf.Insert(intRecord(k))
	}
	asc := sf.Asc()
	for i := 1; i < len(asc); i++ {
		if asc[i-1].(intRecord) >= asc[i].(intRecord) {
			t.Fatalf("Asc() not ascending at %d: %v then %v", i, asc[i-1], asc[i])
		}
	}
	dsc := sf.Dsc()
	for i := 1; i < len(dsc); i++ {
		if dsc[i-1].(intRecord) <= dsc[i].(intRecord) {
			t.Fatalf("Dsc() not descending at %d: %v then %v", i, dsc[i-1], dsc[i])
		}
	}
}

func TestInsertManyForcesPageSplit(t *testing.T) {
	sf := newTestFile(t)
	n := page.MaxNodesPerPage + 500
	for i := 0; i < n; i++ {
		if !sf.Insert(intRecord(uint64(i))) {
			t.Fatalf("Insert(%d) unexpectedly reported a duplicate", i)
		}
	}
	asc := sf.Asc()
	if len(asc) != n {
		t.Fatalf("Asc() returned %d records, want %d (did the split lose rows?)", len(asc), n)
	}
	for i := 0; i < n; i++ {
		if sf.Get(intRecord(uint64(i))) == nil {
			t.Fatalf("Get(%d) missing after forcing a split", i)
		}
	}
}

func TestRootLPNStableAcrossSplit(t *testing.T) {
	sf := newTestFile(t)
	root := sf.Root()
	for i := 0; i < page.MaxNodesPerPage+10; i++ {
		sf.Insert(intRecord(uint64(i)))
	}
	if sf.Root() != root {
		t.Fatalf("Root() changed across a split: got %d, want %d", sf.Root(), root)
	}
}
