package db

import (
	"testing"

	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/storage/stg"
	"github.com/barrowdb/barrow/internal/txn"
)

func run(t *testing.T, database *Database, sql string) ([][]sqlvalue.Value, []string, error) {
	t.Helper()
	var cols []string
	var rows [][]sqlvalue.Value
	var errMsg string
	tr := &txn.GenTransaction{}
	tr.OnSelected = func(vals []sqlvalue.Value) { rows = append(rows, vals) }
	tr.OnError = func(msg string) { errMsg = msg }
	err := database.Run(sql, tr)
	_ = errMsg
	_ = cols
	return rows, cols, err
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := New(stg.NewMemory(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return database
}

func TestCreateInsertSelectRoundTrip(t *testing.T) {
	database := newTestDatabase(t)

	if _, _, err := run(t, database, "CREATE SCHEMA app"); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, _, err := run(t, database, "CREATE TABLE app.users (name string(64), age int(8))"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, _, err := run(t, database, "INSERT INTO app.users (name, age) VALUES ('alice', 30)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, _, err := run(t, database, "SELECT name, age FROM app.users WHERE age = 30")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0].Str() != "alice" || rows[0][1].Int() != 30 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestUpdateAndDelete(t *testing.T) {
	database := newTestDatabase(t)
	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.t (n int(8))")
	run(t, database, "INSERT INTO app.t (n) VALUES (1)")
	run(t, database, "INSERT INTO app.t (n) VALUES (2)")

	if _, _, err := run(t, database, "UPDATE app.t SET n = 9 WHERE n = 1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, _, _ := run(t, database, "SELECT n FROM app.t WHERE n = 9")
	if len(rows) != 1 {
		t.Fatalf("expected updated row, got %d rows", len(rows))
	}

	if _, _, err := run(t, database, "DELETE FROM app.t WHERE n = 2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _, _ = run(t, database, "SELECT n FROM app.t")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row remaining after delete, got %d", len(rows))
	}
}

func TestRunErrorSetsTransactionError(t *testing.T) {
	database := newTestDatabase(t)
	var errMsg string
	tr := &txn.GenTransaction{}
	tr.OnError = func(msg string) { errMsg = msg }
	if err := database.Run("SELECT * FROM nosuch.table", tr); err == nil {
		t.Fatal("expected an error selecting from a nonexistent table")
	}
	if errMsg == "" {
		t.Fatal("expected SetError to have been called")
	}
}

func TestSaveAndReload(t *testing.T) {
	storage := stg.NewMemory()
	database, err := New(storage, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.t (n int(8))")
	run(t, database, "INSERT INTO app.t (n) VALUES (42)")
	database.Save()

	reopened, err := New(storage, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rows, _, err := run(t, reopened, "SELECT n FROM app.t")
	if err != nil {
		t.Fatalf("select after reopen: %v", err)
	}
	if len(rows) != 1 || rows[0][0].Int() != 42 {
		t.Fatalf("unexpected rows after reopen: %+v", rows)
	}
}

func TestVerifyDBIsDeterministic(t *testing.T) {
	database := newTestDatabase(t)
	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.b (n int(8))")
	run(t, database, "CREATE TABLE app.a (n int(8))")
	run(t, database, "INSERT INTO app.a (n) VALUES (1)")
	run(t, database, "INSERT INTO app.b (n) VALUES (2)")

	d1 := database.VerifyDB()
	d2 := database.VerifyDB()
	if d1 != d2 {
		t.Fatalf("VerifyDB should be deterministic across calls:\n%s\n---\n%s", d1, d2)
	}
}

func TestRepackFilePreservesRows(t *testing.T) {
	database := newTestDatabase(t)
	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.t (n int(8))")
	run(t, database, "INSERT INTO app.t (n) VALUES (1)")
	run(t, database, "INSERT INTO app.t (n) VALUES (2)")

	n := database.RepackFile("app", "t")
	if n != 2 {
		t.Fatalf("RepackFile reported %d rows, want 2", n)
	}
	rows, _, _ := run(t, database, "SELECT n FROM app.t")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after repack, got %d", len(rows))
	}
}

func TestLastIDTracksInserts(t *testing.T) {
	database := newTestDatabase(t)
	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.t (n int(8))")
	run(t, database, "INSERT INTO app.t (n) VALUES (1)")
	run(t, database, "INSERT INTO app.t (n) VALUES (2)")
	if database.LastID() != 2 {
		t.Fatalf("LastID() = %d, want 2", database.LastID())
	}
}

type countingMetrics struct {
	hits, misses, statements, errors int
}

func (m *countingMetrics) Hit()                 { m.hits++ }
func (m *countingMetrics) Miss()                { m.misses++ }
func (m *countingMetrics) StatementRun(string)   { m.statements++ }
func (m *countingMetrics) StatementError()      { m.errors++ }

func TestSetMetricsCountsStatements(t *testing.T) {
	database := newTestDatabase(t)
	met := &countingMetrics{}
	database.SetMetrics(met)

	run(t, database, "CREATE SCHEMA app")
	run(t, database, "CREATE TABLE app.t (n int(8))")
	if met.statements != 2 {
		t.Fatalf("expected 2 statements counted, got %d", met.statements)
	}

	database.Run("SELECT * FROM nosuch.table", &txn.GenTransaction{})
	if met.errors != 1 {
		t.Fatalf("expected 1 statement error counted, got %d", met.errors)
	}

	database.SetMetrics(nil)
	run(t, database, "INSERT INTO app.t (n) VALUES (1)")
	if met.statements != 2 {
		t.Fatalf("expected statement count to stop increasing after SetMetrics(nil), got %d", met.statements)
	}
}
