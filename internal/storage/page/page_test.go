package page

import (
	"encoding/binary"
	"testing"
)

const testRecSize = 8

func keyRecord(k uint64) []byte {
	b := make([]byte, testRecSize)
	binary.BigEndian.PutUint64(b, k)
	return b
}

func keyCmp(k uint64) Comparator {
	want := keyRecord(k)
	return func(data []byte) int {
		for i := range want {
			if want[i] != data[i] {
				if want[i] < data[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
}

func keySave(k uint64) Save {
	rec := keyRecord(k)
	return func(dst []byte) { copy(dst, rec) }
}

func insertKeys(t *testing.T, p *Page, keys ...uint64) {
	t.Helper()
	for _, k := range keys {
		if !p.Insert(keyCmp(k), keySave(k), 0) {
			t.Fatalf("Insert(%d) reported a duplicate unexpectedly", k)
		}
	}
}

func TestInsertAndFindEqual(t *testing.T) {
	p := New(0, testRecSize)
	insertKeys(t, p, 10, 5, 20, 1, 15)

	id, _, ok := p.FindEqual(keyCmp(15))
	if !ok {
		t.Fatal("expected to find key 15")
	}
	if binary.BigEndian.Uint64(p.Record(id)) != 15 {
		t.Fatalf("found wrong record for key 15: %+v", p.Record(id))
	}

	if _, _, ok := p.FindEqual(keyCmp(999)); ok {
		t.Fatal("expected key 999 to be absent")
	}
}

func TestInsertDuplicateIsNoOp(t *testing.T) {
	p := New(0, testRecSize)
	insertKeys(t, p, 1)
	if p.Insert(keyCmp(1), keySave(1), 0) {
		t.Fatal("expected duplicate insert to report false")
	}
	if p.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after duplicate insert", p.Count())
	}
}

func TestRemoveDeletesRecord(t *testing.T) {
	p := New(0, testRecSize)
	insertKeys(t, p, 1, 2, 3)

	if !p.Remove(keyCmp(2)) {
		t.Fatal("expected Remove(2) to succeed")
	}
	if _, _, ok := p.FindEqual(keyCmp(2)); ok {
		t.Fatal("key 2 should be gone after Remove")
	}
	if p.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 after removing one of three", p.Count())
	}
	if p.Remove(keyCmp(2)) {
		t.Fatal("removing an already-removed key should return false")
	}
}

func TestInOrderAscendingIsSorted(t *testing.T) {
	p := New(0, testRecSize)
	keys := []uint64{50, 10, 40, 20, 30}
	insertKeys(t, p, keys...)

	ids := p.InOrderAscending()
	if len(ids) != len(keys) {
		t.Fatalf("got %d ids, want %d", len(ids), len(keys))
	}
	var prev uint64
	for i, id := range ids {
		k := binary.BigEndian.Uint64(p.Record(id))
		if i > 0 && k <= prev {
			t.Fatalf("InOrderAscending not sorted: %d after %d", k, prev)
		}
		prev = k
	}
}

func TestWrapReconstructsPage(t *testing.T) {
	p := New(0, testRecSize)
	insertKeys(t, p, 1, 2, 3)
	saved := append([]byte(nil), p.Bytes()...)

	p2 := Wrap(saved, testRecSize)
	if _, _, ok := p2.FindEqual(keyCmp(2)); !ok {
		t.Fatal("expected key 2 to survive Wrap round trip")
	}
	if p2.Count() != 3 {
		t.Fatalf("Count() after Wrap = %d, want 3", p2.Count())
	}
}

func TestParentPageStoresChildLPN(t *testing.T) {
	p := New(1, testRecSize)
	p.SetFirstPage(100)
	if !p.Insert(keyCmp(5), keySave(5), 200) {
		t.Fatal("insert into parent page failed")
	}
	id, _, ok := p.FindEqual(keyCmp(5))
	if !ok {
		t.Fatal("expected to find routing key 5")
	}
	if p.ChildLPN(id) != 200 {
		t.Fatalf("ChildLPN = %d, want 200", p.ChildLPN(id))
	}
	if p.FirstPage() != 100 {
		t.Fatalf("FirstPage() = %d, want 100", p.FirstPage())
	}
}

func TestIsEmpty(t *testing.T) {
	p := New(0, testRecSize)
	if !p.IsEmpty() {
		t.Fatal("a fresh page should be empty")
	}
	insertKeys(t, p, 1)
	if p.IsEmpty() {
		t.Fatal("a page with one record should not be empty")
	}
}
