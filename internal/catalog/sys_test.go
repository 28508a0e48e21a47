package catalog

import (
	"testing"

	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/stg"
)

// nopCodec stands in for Database's real byte-store dispatch in tests that
// never produce a string/binary value too long to fit inline.
type nopCodec struct{}

func (nopCodec) Encode([]byte) (uint64, int)    { panic("catalog: nopCodec.Encode should not be called in tests") }
func (nopCodec) Decode(uint64, int, int) []byte { panic("catalog: nopCodec.Decode should not be called in tests") }
func (nopCodec) Delcode(uint64, int)            {}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	shared := pager.New(stg.NewMemory())
	access := shared.OpenWrite()
	return Open(access, access.IsNew(), nopCodec{})
}

func TestOpenBootstrapsSysSchema(t *testing.T) {
	sys := newTestSystem(t)
	if sd := sys.GetSchema("sys"); sd == nil {
		t.Fatal("expected bootstrap sys schema to exist")
	}
}

func TestCreateSchemaDuplicatePanics(t *testing.T) {
	sys := newTestSystem(t)
	sys.CreateSchema("app")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic creating a duplicate schema")
		}
	}()
	sys.CreateSchema("app")
}

func TestCreateTableAndInsertRoundTrip(t *testing.T) {
	sys := newTestSystem(t)
	sys.CreateSchema("app")
	info := NewColInfo("app.users")
	info.Add("name", sqlvalue.NewDataType(sqlvalue.KindString, 64))
	info.Add("age", sqlvalue.NewDataType(sqlvalue.KindInt, 8))
	td := sys.CreateTable("app", "users", info)

	row := NewRow(td.Table.Info)
	row.ID = td.Table.AllocID()
	row.Vals[0] = sqlvalue.Str("alice")
	row.Vals[1] = sqlvalue.Int(30)
	td.Table.Insert(row)

	got := sys.GetTable("app", "users")
	if got == nil {
		t.Fatal("expected table to be retrievable")
	}
	rows := got.Table.Scan()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Vals[0].Str() != "alice" || rows[0].Vals[1].Int() != 30 {
		t.Fatalf("unexpected row contents: %+v", rows[0].Vals)
	}
}

func TestCreateTableUnknownSchemaPanics(t *testing.T) {
	sys := newTestSystem(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic creating a table in a nonexistent schema")
		}
	}()
	sys.CreateTable("nosuch", "t", NewColInfo("nosuch.t"))
}

func TestTableDefCarriesSchemaName(t *testing.T) {
	sys := newTestSystem(t)
	sys.CreateSchema("app")
	td := sys.CreateTable("app", "t", NewColInfo("app.t"))
	if td.SchemaName != "app" {
		t.Fatalf("SchemaName = %q, want app", td.SchemaName)
	}
}

func TestTablesReturnsDeterministicOrder(t *testing.T) {
	sys := newTestSystem(t)
	sys.CreateSchema("app")
	sys.CreateTable("app", "zzz", NewColInfo("app.zzz"))
	sys.CreateTable("app", "aaa", NewColInfo("app.aaa"))
	sys.CreateTable("app", "mmm", NewColInfo("app.mmm"))

	for i := 0; i < 5; i++ {
		tables := sys.Tables()
		if len(tables) != 3 {
			t.Fatalf("expected 3 tables, got %d", len(tables))
		}
		if tables[0].Name != "aaa" || tables[1].Name != "mmm" || tables[2].Name != "zzz" {
			t.Fatalf("expected sorted order aaa,mmm,zzz; got %s,%s,%s",
				tables[0].Name, tables[1].Name, tables[2].Name)
		}
	}
}

func TestCreateIndexAndLookup(t *testing.T) {
	sys := newTestSystem(t)
	sys.CreateSchema("app")
	info := NewColInfo("app.users")
	info.Add("email", sqlvalue.NewDataType(sqlvalue.KindString, 64))
	td := sys.CreateTable("app", "users", info)

	row := NewRow(td.Table.Info)
	row.ID = td.Table.AllocID()
	row.Vals[0] = sqlvalue.Str("a@example.com")
	td.Table.Insert(row)

	ix := sys.CreateIndex("app", "users", "idx_email", []int{0})
	ids := ix.Lookup([]sqlvalue.Value{sqlvalue.Str("a@example.com")})
	if len(ids) != 1 || ids[0] != row.ID {
		t.Fatalf("unexpected index lookup result: %+v", ids)
	}
}

func TestReopenReloadsTablesAndRows(t *testing.T) {
	shared := pager.New(stg.NewMemory())
	access := shared.OpenWrite()
	sys := Open(access, access.IsNew(), nopCodec{})
	sys.CreateSchema("app")
	info := NewColInfo("app.users")
	info.Add("name", sqlvalue.NewDataType(sqlvalue.KindString, 64))
	td := sys.CreateTable("app", "users", info)
	row := NewRow(td.Table.Info)
	row.ID = td.Table.AllocID()
	row.Vals[0] = sqlvalue.Str("bob")
	td.Table.Insert(row)
	sys.Save()
	access.Save(pager.Save)

	access2 := shared.OpenWrite()
	sys2 := Open(access2, access2.IsNew(), nopCodec{})
	reloaded := sys2.GetTable("app", "users")
	if reloaded == nil {
		t.Fatal("expected reloaded table to exist")
	}
	rows := reloaded.Table.Scan()
	if len(rows) != 1 || rows[0].Vals[0].Str() != "bob" {
		t.Fatalf("unexpected reloaded rows: %+v", rows)
	}
}
