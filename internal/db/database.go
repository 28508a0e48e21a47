// Package db ties the storage, catalog, compiler, evaluator and builtin
// layers into one embeddable Database: the spec's top-level handle a host
// opens once and calls Run against for every SQL batch.
//
// What: New opens (or creates) a Database over a stg.Storage, bootstraps
// the system catalog and out-of-line byte stores, and runs an optional
// seed SQL script. Run parses and executes one SQL batch against a
// host-supplied txn.Transaction. Save durably commits pending writes.
// How: Mirrors the source's lib.rs::Database, which owns one
// SharedPagedData plus the six bootstrap tables and four byte-fragment
// stores, translated here to pager.Shared + catalog.System +
// [bytestore.NFT]*bytestore.ByteStorage. Database implements
// catalog.Codec (dispatching a value's out-of-line storage to the byte
// store whose fragment size best fits it) and sqlcompile.DatabaseOps
// (LASTID/REPACKFILE/VERIFYDB), so sqleval and sqlbuiltin never import
// this package directly.
// Why: Keeping every storage/catalog/compiler package ignorant of
// Database (and vice versa, via the narrow Codec/DatabaseOps interfaces)
// is what lets them be unit tested against an in-memory pager without
// ever constructing a full Database.
package db

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/barrowdb/barrow/internal/bytestore"
	"github.com/barrowdb/barrow/internal/catalog"
	"github.com/barrowdb/barrow/internal/logging"
	"github.com/barrowdb/barrow/internal/sqlbuiltin"
	"github.com/barrowdb/barrow/internal/sqleval"
	"github.com/barrowdb/barrow/internal/sqlparse"
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/stg"
	"github.com/barrowdb/barrow/internal/txn"
)

// metaLPN holds the four byte-store root LPNs (8 bytes each) immediately
// followed by the global LASTID counter (8 bytes). catalog.Open always
// consumes LPNs 1-6 for the six bootstrap tables before New ever touches
// the pager again, so the very next AllocPage call — made first thing in
// bootstrapByteStores, before any byte store is opened — is guaranteed to
// return 7. bootstrapByteStores asserts this so a future reordering of
// the bootstrap sequence fails loudly instead of silently colliding LPNs.
const metaLPN = 7

// hostPageSize is the representative page size fed to
// bytestore.BytesPerFragment when sizing fragment classes. The source
// derives this from its fixed sp_size/ep_size physical page geometry;
// this port's pages grow on demand rather than living at one fixed
// physical size, so hostPageSize is carried as a standalone constant
// tuned to the same ep_size (1024) the compact file uses for extension
// pages, rather than re-deriving it from a page that has no single size.
const hostPageSize = 1024

// Database is one open barrow database: storage, catalog and SQL engine
// bound together behind Run/Save.
type Database struct {
	shared  *pager.Shared
	storage stg.Storage
	access  *pager.Access // the single writer access, held open for the database's lifetime.

	sys        *catalog.System
	byteStores [bytestore.NFT]*bytestore.ByteStorage
	bpf        [bytestore.NFT]int

	builtins *sqlbuiltin.Registry
	eval     *sqleval.Evaluator

	lastID int64

	log zerolog.Logger
	met Metrics
}

// Metrics is the slice of metrics.Metrics a Database reports against,
// kept narrow (rather than importing internal/metrics directly) so a
// host can skip Prometheus registration entirely in tests.
type Metrics interface {
	pager.CacheObserver
	StatementRun(kind string)
	StatementError()
}

// SetMetrics wires m to receive this Database's page-cache and statement
// events. Pass nil (the default) to disable.
func (d *Database) SetMetrics(m Metrics) {
	d.met = m
	if m == nil {
		d.shared.SetObserver(nil)
		return
	}
	d.shared.SetObserver(m)
}

// New opens storage as a Database, bootstrapping the catalog and byte
// stores on first use, then running initsql (if non-empty) as the
// bootstrap schema/table setup script, discarding any of its SELECT
// output.
func New(storage stg.Storage, initsql string) (*Database, error) {
	shared := pager.New(storage)
	access := shared.OpenWrite()
	isNew := access.IsNew()

	d := &Database{
		shared:  shared,
		storage: storage,
		access:  access,
		bpf:     bytestore.BytesPerFragment(hostPageSize),
		log:     logging.New("db"),
	}
	d.builtins = sqlbuiltin.New()
	d.sys = catalog.Open(access, isNew, d)
	d.eval = sqleval.New(d.sys, d.builtins, d)

	if isNew {
		d.bootstrapByteStores()
	} else {
		d.loadByteStores()
	}

	if initsql != "" {
		if err := d.Run(initsql, &txn.Dummy{}); err != nil {
			return nil, errors.Wrap(err, "db: initsql failed")
		}
	}
	return d, nil
}

func (d *Database) bootstrapByteStores() {
	if reserved := d.access.AllocPage(); reserved != metaLPN {
		panic(fmt.Sprintf("db: unexpected meta page LPN %d (want %d); catalog bootstrap order changed", reserved, metaLPN))
	}
	meta := make([]byte, 40)
	for ft := 0; ft < bytestore.NFT; ft++ {
		bs, root := bytestore.Open(d.access, 0, d.bpf[ft])
		d.byteStores[ft] = bs
		stg.SetU64(meta, ft*8, root)
	}
	stg.SetU64(meta, 32, uint64(d.lastID))
	d.access.SetPage(metaLPN, meta)
}

func (d *Database) loadByteStores() {
	meta := d.access.GetPage(metaLPN)
	for ft := 0; ft < bytestore.NFT; ft++ {
		root := stg.GetU64(meta, ft*8)
		bs, _ := bytestore.Open(d.access, root, d.bpf[ft])
		d.byteStores[ft] = bs
	}
	d.lastID = int64(stg.GetU64(meta, 32))
}

// Run parses sqlText as a sequence of GO-separated batches and executes
// each in order against t, stopping at the first error. Panics from the
// storage/evaluator layers are recovered and reported through t.SetError
// as well as returned, mirroring spec §7's "downcast to SqlError"
// boundary.
func (d *Database) Run(sqlText string, t txn.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if d.met != nil {
				d.met.StatementError()
			}
			err = errors.WithStack(fmt.Errorf("%v", r))
			t.SetError(err.Error())
		}
	}()
	p := sqlparse.NewParser(sqlText)
	for {
		stmts, done := p.ParseBatch()
		if len(stmts) > 0 {
			if d.met != nil {
				for _, s := range stmts {
					d.met.StatementRun(statementKind(s))
				}
			}
			if execErr := d.eval.Execute(stmts, t); execErr != nil {
				if d.met != nil {
					d.met.StatementError()
				}
				wrapped := errors.WithStack(execErr)
				t.SetError(wrapped.Error())
				return wrapped
			}
		}
		if done {
			return nil
		}
	}
}

// Save commits the writer's pending page changes durably, persisting
// every table's current root/id-generator state into the system catalog
// first.
func (d *Database) Save() {
	d.sys.Save()
	meta := make([]byte, 40)
	for ft, bs := range d.byteStores {
		stg.SetU64(meta, ft*8, bs.Root())
	}
	stg.SetU64(meta, 32, uint64(d.lastID))
	d.access.SetPage(metaLPN, meta)
	d.access.Save(pager.Save)
	d.log.Debug().Msg("database saved")
}

// Rollback discards the writer's pending page changes.
func (d *Database) Rollback() {
	d.access.Save(pager.Rollback)
}

// --- catalog.Codec ---

// Encode dispatches bytes to the byte store whose fragment size best
// fits its length, per the source's bytes.rs fragment_type heuristic.
func (d *Database) Encode(data []byte) (uint64, int) {
	ft := bytestore.FragmentType(len(data), d.bpf)
	return d.byteStores[ft].Encode(data), ft
}

// Decode reconstructs a value from fragment type ft starting at id,
// prefixed by the inline bytes already known to the row layer.
func (d *Database) Decode(id uint64, ft int, inline int) []byte {
	return d.byteStores[ft].Decode(id, inline)
}

// Delcode frees a value's out-of-line fragment chain.
func (d *Database) Delcode(id uint64, ft int) {
	d.byteStores[ft].Delcode(id)
}

// --- sqlcompile.DatabaseOps ---

// Tables returns every open user table's catalog definition, for a
// maintenance.Scheduler to iterate without importing catalog's internals.
func (d *Database) Tables() []*catalog.TableDef { return d.sys.Tables() }

// LastID returns the most recently assigned row id across every table,
// backing the LASTID() builtin.
func (d *Database) LastID() int64 { return d.lastID }

// NoteLastID records a freshly assigned row id; called by the evaluator
// after every successful INSERT.
func (d *Database) NoteLastID(id int64) { d.lastID = id }

// RepackFile rewrites schema.table's row storage by removing and then
// reinserting every row, returning the number of rows rewritten. The
// source's REPACKFILE reports bytes reclaimed by physical page compaction;
// this port reports the row count instead and measures no reclaimed bytes.
func (d *Database) RepackFile(schema, table string) int64 {
	td := d.sys.GetTable(schema, table)
	if td == nil {
		panic(fmt.Sprintf("db: no such table %s.%s", schema, table))
	}
	rows := td.Table.Scan()
	for _, row := range rows {
		td.Table.Remove(row)
	}
	for _, row := range rows {
		td.Table.Insert(row)
	}
	d.log.Debug().Str("table", schema+"."+table).Int("rows", len(rows)).Msg("repacked")
	return int64(len(rows))
}

// VerifyDB renders a deterministic digest source string over every
// table's current rows, hashed by the VERIFYDB() builtin (blake2b) to
// detect structural drift between two otherwise-equal databases.
func (d *Database) VerifyDB() string {
	var out []byte
	for _, td := range d.sys.Tables() {
		out = append(out, []byte(fmt.Sprintf("TABLE %s.%s\n", td.SchemaName, td.Name))...)
		for _, row := range td.Table.Scan() {
			out = append(out, []byte(fmt.Sprintf("%d:", row.ID))...)
			for _, v := range row.Vals {
				out = append(out, []byte(v.Str())...)
				out = append(out, ',')
			}
			out = append(out, '\n')
		}
	}
	return string(out)
}

// statementKind labels a parsed statement for the barrow_statements_total
// metric.
func statementKind(s sqlparse.Stmt) string {
	switch s.(type) {
	case sqlparse.CreateSchemaStmt, sqlparse.CreateTableStmt, sqlparse.CreateIndexStmt:
		return "DDL"
	case sqlparse.InsertStmt:
		return "INSERT"
	case sqlparse.SelectStmt:
		return "SELECT"
	case sqlparse.UpdateStmt:
		return "UPDATE"
	case sqlparse.DeleteStmt:
		return "DELETE"
	default:
		return "OTHER"
	}
}
