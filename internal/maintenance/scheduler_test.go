package maintenance

import (
	"testing"

	"github.com/barrowdb/barrow/internal/catalog"
	"github.com/barrowdb/barrow/internal/config"
)

type fakeRunner struct {
	tables      []*catalog.TableDef
	repacked    []string
	verifyCalls int
	digest      string
}

func (f *fakeRunner) Tables() []*catalog.TableDef { return f.tables }

func (f *fakeRunner) RepackFile(schema, table string) int64 {
	f.repacked = append(f.repacked, schema+"."+table)
	return 1
}

func (f *fakeRunner) VerifyDB() string {
	f.verifyCalls++
	return f.digest
}

func TestNewDisabledRegistersNoJobs(t *testing.T) {
	s, err := New(config.MaintenanceConfig{Enabled: false}, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.cron.Entries()) != 0 {
		t.Fatalf("expected no cron entries when disabled, got %d", len(s.cron.Entries()))
	}
}

func TestNewEnabledRegistersBothJobs(t *testing.T) {
	cfg := config.MaintenanceConfig{
		Enabled:        true,
		RepackSchedule: "0 3 * * *",
		VerifySchedule: "0 */6 * * *",
	}
	s, err := New(cfg, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.cron.Entries()) != 2 {
		t.Fatalf("expected 2 cron entries, got %d", len(s.cron.Entries()))
	}
}

func TestNewEnabledWithEmptySchedulesRegistersNothing(t *testing.T) {
	s, err := New(config.MaintenanceConfig{Enabled: true}, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.cron.Entries()) != 0 {
		t.Fatalf("expected no cron entries when schedules are empty, got %d", len(s.cron.Entries()))
	}
}

func TestNewInvalidCronExpressionErrors(t *testing.T) {
	cfg := config.MaintenanceConfig{Enabled: true, RepackSchedule: "not a cron expr"}
	if _, err := New(cfg, &fakeRunner{}); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestRepackAllRepacksEveryTable(t *testing.T) {
	s, err := New(config.MaintenanceConfig{Enabled: false}, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runner := &fakeRunner{tables: []*catalog.TableDef{
		{SchemaName: "app", Name: "t1"},
		{SchemaName: "app", Name: "t2"},
	}}
	s.repackAll(runner)
	if len(runner.repacked) != 2 {
		t.Fatalf("expected 2 tables repacked, got %d", len(runner.repacked))
	}
	if runner.repacked[0] != "app.t1" || runner.repacked[1] != "app.t2" {
		t.Fatalf("unexpected repack order: %v", runner.repacked)
	}
}

func TestVerifyCallsVerifyDB(t *testing.T) {
	s, err := New(config.MaintenanceConfig{Enabled: false}, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runner := &fakeRunner{digest: "deadbeef"}
	s.verify(runner)
	if runner.verifyCalls != 1 {
		t.Fatalf("expected VerifyDB called once, got %d", runner.verifyCalls)
	}
}

func TestStartStopDoesNotPanic(t *testing.T) {
	s, err := New(config.MaintenanceConfig{Enabled: false}, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()
}
