package compact

import (
	"bytes"
	"testing"

	"github.com/barrowdb/barrow/internal/storage/stg"
)

func TestNewOnEmptyStorageIsNew(t *testing.T) {
	cf := New(stg.NewMemory(), 400, 1024)
	if !cf.IsNew() {
		t.Fatal("expected a fresh empty storage to report IsNew")
	}
}

func TestAllocSetGetPageRoundTrip(t *testing.T) {
	cf := New(stg.NewMemory(), 400, 1024)
	lpn := cf.AllocPage()
	data := bytes.Repeat([]byte("x"), 50)
	cf.SetPage(lpn, data)

	got := cf.GetPage(lpn)
	if !bytes.Equal(got, data) {
		t.Fatalf("GetPage returned %d bytes, want %d matching", len(got), len(data))
	}
}

func TestSetPageLargerThanStarterUsesExtensionPages(t *testing.T) {
	cf := New(stg.NewMemory(), 400, 1024)
	lpn := cf.AllocPage()
	data := bytes.Repeat([]byte("y"), 5000)
	cf.SetPage(lpn, data)

	got := cf.GetPage(lpn)
	if !bytes.Equal(got, data) {
		t.Fatalf("large page round trip failed: got %d bytes, want %d", len(got), len(data))
	}
}

func TestPageSizeMatchesStoredLength(t *testing.T) {
	cf := New(stg.NewMemory(), 400, 1024)
	lpn := cf.AllocPage()
	cf.SetPage(lpn, bytes.Repeat([]byte("z"), 123))
	if cf.PageSize(lpn) != 123 {
		t.Fatalf("PageSize = %d, want 123", cf.PageSize(lpn))
	}
}

func TestFreePageIsReallocatedAfterSave(t *testing.T) {
	cf := New(stg.NewMemory(), 400, 1024)
	lpn1 := cf.AllocPage()
	cf.SetPage(lpn1, []byte("a"))
	cf.FreePage(lpn1)
	cf.Save()

	lpn2 := cf.AllocPage()
	if lpn2 != lpn1 {
		t.Fatalf("expected freed LPN %d to be reused, got %d", lpn1, lpn2)
	}
}

func TestReopenAfterSavePreservesPages(t *testing.T) {
	storage := stg.NewMemory()
	cf := New(storage, 400, 1024)
	lpn := cf.AllocPage()
	cf.SetPage(lpn, bytes.Repeat([]byte("p"), 2000))
	cf.Save()

	reopened := New(storage, 0, 0)
	if reopened.IsNew() {
		t.Fatal("reopened storage should not report IsNew")
	}
	got := reopened.GetPage(lpn)
	if !bytes.Equal(got, bytes.Repeat([]byte("p"), 2000)) {
		t.Fatalf("reopened page contents mismatch, got %d bytes", len(got))
	}
}

func TestRollbackDiscardsPendingFrees(t *testing.T) {
	storage := stg.NewMemory()
	cf := New(storage, 400, 1024)
	lpn := cf.AllocPage()
	cf.SetPage(lpn, []byte("keep"))
	cf.Save()

	cf.FreePage(lpn)
	cf.Rollback()

	got := cf.GetPage(lpn)
	if !bytes.Equal(got, []byte("keep")) {
		t.Fatalf("Rollback should have discarded the pending free: got %q", got)
	}
}

func TestCompressReportsExtensionPageSavings(t *testing.T) {
	if Compress(400, 1024, 100, 0) {
		t.Fatal("zero savings should never free a page")
	}
	if Compress(400, 1024, 100, 200) {
		t.Fatal("saving more bytes than the page holds should report false")
	}
}
