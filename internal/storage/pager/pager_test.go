package pager

import (
	"bytes"
	"testing"

	"github.com/barrowdb/barrow/internal/storage/stg"
)

func TestOpenWriteIsNewOnFreshStorage(t *testing.T) {
	shared := New(stg.NewMemory())
	access := shared.OpenWrite()
	if !access.IsNew() {
		t.Fatal("a fresh storage's writer Access should report IsNew")
	}
}

func TestSetGetPageRoundTrip(t *testing.T) {
	shared := New(stg.NewMemory())
	access := shared.OpenWrite()
	lpn := access.AllocPage()
	access.SetPage(lpn, []byte("payload"))

	if got := access.GetPage(lpn); !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("GetPage = %q, want payload", got)
	}
}

func TestReadSnapshotDoesNotSeeLaterWrites(t *testing.T) {
	shared := New(stg.NewMemory())
	writer := shared.OpenWrite()
	lpn := writer.AllocPage()
	writer.SetPage(lpn, []byte("v1"))
	writer.Save(Save)

	reader := shared.OpenRead()
	defer reader.Close()

	writer.SetPage(lpn, []byte("v2"))
	writer.Save(Save)

	if got := reader.GetPage(lpn); !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("reader snapshot should still see v1, got %q", got)
	}
	if got := writer.GetPage(lpn); !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("writer should see v2 after its own second save, got %q", got)
	}
}

func TestSetPagePanicsOnReadOnlyAccess(t *testing.T) {
	shared := New(stg.NewMemory())
	writer := shared.OpenWrite()
	lpn := writer.AllocPage()
	writer.SetPage(lpn, []byte("x"))
	writer.Save(Save)

	reader := shared.OpenRead()
	defer reader.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected SetPage on a read-only Access to panic")
		}
	}()
	reader.SetPage(lpn, []byte("y"))
}

func TestReopenAfterSavePersists(t *testing.T) {
	storage := stg.NewMemory()
	shared := New(storage)
	access := shared.OpenWrite()
	lpn := access.AllocPage()
	access.SetPage(lpn, []byte("durable"))
	access.Save(Save)

	shared2 := New(storage)
	access2 := shared2.OpenWrite()
	if access2.IsNew() {
		t.Fatal("reopened storage should not report IsNew")
	}
	if got := access2.GetPage(lpn); !bytes.Equal(got, []byte("durable")) {
		t.Fatalf("GetPage after reopen = %q, want durable", got)
	}
}

type countingObserver struct{ hits, misses int }

func (c *countingObserver) Hit()  { c.hits++ }
func (c *countingObserver) Miss() { c.misses++ }

func TestSetObserverReceivesHitMiss(t *testing.T) {
	shared := New(stg.NewMemory())
	obs := &countingObserver{}
	shared.SetObserver(obs)

	access := shared.OpenWrite()
	lpn := access.AllocPage()
	access.SetPage(lpn, []byte("v"))
	access.GetPage(lpn)
	access.GetPage(lpn)

	if obs.hits+obs.misses == 0 {
		t.Fatal("expected at least one hit/miss observation after GetPage calls")
	}
}
