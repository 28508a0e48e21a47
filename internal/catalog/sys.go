package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/storage/pager"
)

// Fixed logical page numbers for the six bootstrap system tables, at 1..6.
// The LPN*Index constants (7..12) are declared but not used: no name-lookup
// indexes over the system tables are created, and LPN 7 holds the
// database's meta page (db.metaLPN).
const (
	LPNSchema      = 1
	LPNTable       = 2
	LPNColumn      = 3
	LPNIndex       = 4
	LPNIndexColumn = 5
	LPNFunction    = 6

	LPNSchemaIndex      = 7
	LPNTableIndex       = 8
	LPNColumnIndex      = 9
	LPNIndexIndex       = 10
	LPNIndexColumnIndex = 11
	LPNFunctionIndex    = 12
)

// SchemaDef is a loaded sys.Schema row.
type SchemaDef struct {
	ID   int64
	Name string
}

// TableDef is a loaded sys.Table row plus its live Table, once opened.
type TableDef struct {
	ID         int64
	Schema     int64
	SchemaName string
	Name       string
	Root       uint64
	IDGen      int64
	Table      *Table
}

// FunctionDef is a loaded sys.Function row; Compiled/body are filled in
// and invalidated by the evaluator layer, which owns parsing/compiling.
type FunctionDef struct {
	ID     int64
	Schema int64
	Name   string
	Source string
}

// System is the open system catalog: the six bootstrap tables plus
// convenience maps keyed by qualified name.
type System struct {
	access *pager.Access
	codec  Codec

	schemaTable, tableTable, columnTable, indexTable, indexColTable, functionTable *Table

	schemas   map[string]*SchemaDef
	tables    map[string]*TableDef
	functions map[string]*FunctionDef
	nextSchemaID, nextTableID, nextColumnID, nextIndexID, nextFunctionID int64
}

func sysColInfo(name string, cols ...struct {
	n string
	t sqlvalue.DataType
}) *ColInfo {
	ci := NewColInfo(name)
	for _, c := range cols {
		ci.Add(c.n, c.t)
	}
	return ci
}

func col(n string, t sqlvalue.DataType) struct {
	n string
	t sqlvalue.DataType
} {
	return struct {
		n string
		t sqlvalue.DataType
	}{n, t}
}

func intType(size int) sqlvalue.DataType   { return sqlvalue.NewDataType(sqlvalue.KindInt, size) }
func strType(size int) sqlvalue.DataType   { return sqlvalue.NewDataType(sqlvalue.KindString, size) }

// schemaColInfo etc. describe the hardcoded bootstrap column sets.
func schemaColInfo() *ColInfo {
	return sysColInfo("sys.Schema", col("Name", strType(64)))
}

func tableColInfo() *ColInfo {
	return sysColInfo("sys.Table",
		col("Schema", intType(8)), col("Name", strType(64)),
		col("Root", intType(8)), col("IdGen", intType(8)))
}

func columnColInfo() *ColInfo {
	return sysColInfo("sys.Column",
		col("Table", intType(8)), col("Name", strType(64)),
		col("Type", intType(8)), col("ColNum", intType(8)))
}

func indexColInfo() *ColInfo {
	return sysColInfo("sys.Index",
		col("Table", intType(8)), col("Name", strType(64)), col("Root", intType(8)))
}

func indexColumnColInfo() *ColInfo {
	return sysColInfo("sys.IndexColumn",
		col("Index", intType(8)), col("ColNum", intType(8)), col("Position", intType(8)))
}

func functionColInfo() *ColInfo {
	return sysColInfo("sys.Function",
		col("Schema", intType(8)), col("Name", strType(64)), col("Source", strType(250)))
}

// Open bootstraps the system catalog: if the database is new, the six
// tables are created fresh at their fixed LPNs; otherwise their roots are
// read back from the (already-known) fixed LPNs and the in-memory caches
// are populated by scanning them.
func Open(access *pager.Access, isNew bool, codec Codec) *System {
	s := &System{
		access:    access,
		codec:     codec,
		schemas:   make(map[string]*SchemaDef),
		tables:    make(map[string]*TableDef),
		functions: make(map[string]*FunctionDef),
	}
	if isNew {
		s.schemaTable = NewTable(access, LPNSchema, 0, 0, schemaColInfo(), codec)
		s.tableTable = NewTable(access, LPNTable, 0, 0, tableColInfo(), codec)
		s.columnTable = NewTable(access, LPNColumn, 0, 0, columnColInfo(), codec)
		s.indexTable = NewTable(access, LPNIndex, 0, 0, indexColInfo(), codec)
		s.indexColTable = NewTable(access, LPNIndexColumn, 0, 0, indexColumnColInfo(), codec)
		s.functionTable = NewTable(access, LPNFunction, 0, 0, functionColInfo(), codec)
		s.nextSchemaID, s.nextTableID, s.nextColumnID, s.nextIndexID, s.nextFunctionID = 1, 1, 1, 1, 1
		s.CreateSchema("sys")
		return s
	}
	s.schemaTable = NewTable(access, LPNSchema, LPNSchema, 0, schemaColInfo(), codec)
	s.tableTable = NewTable(access, LPNTable, LPNTable, 0, tableColInfo(), codec)
	s.columnTable = NewTable(access, LPNColumn, LPNColumn, 0, columnColInfo(), codec)
	s.indexTable = NewTable(access, LPNIndex, LPNIndex, 0, indexColInfo(), codec)
	s.indexColTable = NewTable(access, LPNIndexColumn, LPNIndexColumn, 0, indexColumnColInfo(), codec)
	s.functionTable = NewTable(access, LPNFunction, LPNFunction, 0, functionColInfo(), codec)
	s.load()
	return s
}

// load populates in-memory caches from the bootstrap tables' current
// contents, reconstructing every user table and its indexes.
func (s *System) load() {
	schemaByID := map[int64]string{}
	for _, row := range s.schemaTable.Scan() {
		name := row.Vals[0].Str()
		s.schemas[name] = &SchemaDef{ID: row.ID, Name: name}
		schemaByID[row.ID] = name
		if row.ID >= s.nextSchemaID {
			s.nextSchemaID = row.ID + 1
		}
	}

	columnsByTable := map[int64][]*Row{}
	for _, row := range s.columnTable.Scan() {
		tid := row.Vals[0].Int()
		columnsByTable[tid] = append(columnsByTable[tid], row)
		if row.ID >= s.nextColumnID {
			s.nextColumnID = row.ID + 1
		}
	}

	indexesByTable := map[int64][]*Row{}
	for _, row := range s.indexTable.Scan() {
		tid := row.Vals[0].Int()
		indexesByTable[tid] = append(indexesByTable[tid], row)
		if row.ID >= s.nextIndexID {
			s.nextIndexID = row.ID + 1
		}
	}

	indexColsByIndex := map[int64][]*Row{}
	for _, row := range s.indexColTable.Scan() {
		ixID := row.Vals[0].Int()
		indexColsByIndex[ixID] = append(indexColsByIndex[ixID], row)
	}

	for _, row := range s.tableTable.Scan() {
		schemaID := row.Vals[0].Int()
		name := row.Vals[1].Str()
		root := uint64(row.Vals[2].Int())
		idGen := row.Vals[3].Int()
		if row.ID >= s.nextTableID {
			s.nextTableID = row.ID + 1
		}
		info := NewColInfo(schemaByID[schemaID] + "." + name)
		for _, crow := range columnsByTable[row.ID] {
			info.Add(crow.Vals[1].Str(), sqlvalue.DataType(crow.Vals[2].Int()))
		}
		tbl := NewTable(s.access, row.ID, root, idGen, info, s.codec)
		for _, irow := range indexesByTable[row.ID] {
			ixCols := indexColsByIndex[irow.ID]
			cols := make([]int, len(ixCols))
			for _, cr := range ixCols {
				pos := cr.Vals[2].Int()
				cols[pos] = int(cr.Vals[1].Int())
			}
			ixRoot := uint64(irow.Vals[2].Int())
			ix := NewIndex(s.access, irow.ID, tbl, cols, ixRoot)
			tbl.AddIndex(ix)
		}
		td := &TableDef{ID: row.ID, Schema: schemaID, SchemaName: schemaByID[schemaID], Name: name, Root: root, IDGen: idGen, Table: tbl}
		s.tables[schemaByID[schemaID]+"."+name] = td
	}

	for _, row := range s.functionTable.Scan() {
		schemaID := row.Vals[0].Int()
		name := row.Vals[1].Str()
		source := row.Vals[2].Str()
		if row.ID >= s.nextFunctionID {
			s.nextFunctionID = row.ID + 1
		}
		s.functions[schemaByID[schemaID]+"."+name] = &FunctionDef{ID: row.ID, Schema: schemaID, Name: name, Source: source}
	}
}

// CreateSchema inserts a new schema, panicking if it already exists.
func (s *System) CreateSchema(name string) *SchemaDef {
	if _, ok := s.schemas[name]; ok {
		panic(fmt.Sprintf("catalog: schema %q already exists", name))
	}
	row := NewRow(s.schemaTable.Info)
	row.ID = s.nextSchemaID
	s.nextSchemaID++
	row.Vals[0] = sqlvalue.Str(name)
	s.schemaTable.Insert(row)
	def := &SchemaDef{ID: row.ID, Name: name}
	s.schemas[name] = def
	return def
}

// GetSchema returns a schema by name, or nil.
func (s *System) GetSchema(name string) *SchemaDef { return s.schemas[name] }

// CreateTable registers a new table with the given columns.
func (s *System) CreateTable(schema, name string, info *ColInfo) *TableDef {
	sd := s.GetSchema(schema)
	if sd == nil {
		panic(fmt.Sprintf("catalog: no such schema %q", schema))
	}
	qualified := schema + "." + name
	if _, ok := s.tables[qualified]; ok {
		panic(fmt.Sprintf("catalog: table %q already exists", qualified))
	}
	tid := s.nextTableID
	s.nextTableID++

	tbl := NewTable(s.access, tid, 0, 0, info, s.codec)

	row := NewRow(s.tableTable.Info)
	row.ID = tid
	row.Vals[0] = sqlvalue.Int(sd.ID)
	row.Vals[1] = sqlvalue.Str(name)
	row.Vals[2] = sqlvalue.Int(int64(tbl.Root()))
	row.Vals[3] = sqlvalue.Int(0)
	s.tableTable.Insert(row)

	for i, ct := range info.ColType {
		crow := NewRow(s.columnTable.Info)
		crow.ID = s.nextColumnID
		s.nextColumnID++
		crow.Vals[0] = sqlvalue.Int(tid)
		crow.Vals[1] = sqlvalue.Str(info.ColName[i])
		crow.Vals[2] = sqlvalue.Int(int64(ct))
		crow.Vals[3] = sqlvalue.Int(int64(i))
		s.columnTable.Insert(crow)
	}

	def := &TableDef{ID: tid, Schema: sd.ID, SchemaName: schema, Name: name, Root: tbl.Root(), Table: tbl}
	s.tables[qualified] = def
	return def
}

// GetTable returns a table by qualified name, or nil.
func (s *System) GetTable(schema, name string) *TableDef { return s.tables[schema+"."+name] }

// CreateIndex registers a new secondary index over cols (table column
// numbers, in key order) and indexes the table's existing rows.
func (s *System) CreateIndex(schema, tableName, indexName string, cols []int) *Index {
	td := s.GetTable(schema, tableName)
	if td == nil {
		panic(fmt.Sprintf("catalog: no such table %s.%s", schema, tableName))
	}
	ixID := s.nextIndexID
	s.nextIndexID++
	ix := NewIndex(s.access, ixID, td.Table, cols, 0)
	for _, row := range td.Table.Scan() {
		ix.insertFor(row)
	}
	td.Table.AddIndex(ix)

	irow := NewRow(s.indexTable.Info)
	irow.ID = ixID
	irow.Vals[0] = sqlvalue.Int(td.ID)
	irow.Vals[1] = sqlvalue.Str(indexName)
	irow.Vals[2] = sqlvalue.Int(int64(ix.Root()))
	s.indexTable.Insert(irow)

	for pos, c := range cols {
		crow := NewRow(s.indexColTable.Info)
		crow.ID = int64(ixID)*1000 + int64(pos) // deterministic, collision-free within one index.
		crow.Vals[0] = sqlvalue.Int(ixID)
		crow.Vals[1] = sqlvalue.Int(int64(c))
		crow.Vals[2] = sqlvalue.Int(int64(pos))
		s.indexColTable.Insert(crow)
	}
	return ix
}

// CreateFunction registers (or, on alter, replaces the source of) a
// stored function/procedure. Per spec §4.I, altering a function's source
// invalidates any already-compiled copy; that invalidation is the
// evaluator layer's responsibility (it owns the compiled-function cache),
// triggered by comparing old vs new source here.
func (s *System) CreateFunction(schema, name, source string) (*FunctionDef, bool /*changed*/) {
	sd := s.GetSchema(schema)
	if sd == nil {
		panic(fmt.Sprintf("catalog: no such schema %q", schema))
	}
	qualified := schema + "." + name
	if existing, ok := s.functions[qualified]; ok {
		if existing.Source == source {
			return existing, false
		}
		existing.Source = source
		s.rewriteFunctionSource(existing)
		return existing, true
	}
	fid := s.nextFunctionID
	s.nextFunctionID++
	row := NewRow(s.functionTable.Info)
	row.ID = fid
	row.Vals[0] = sqlvalue.Int(sd.ID)
	row.Vals[1] = sqlvalue.Str(name)
	row.Vals[2] = sqlvalue.Str(source)
	s.functionTable.Insert(row)
	def := &FunctionDef{ID: fid, Schema: sd.ID, Name: name, Source: source}
	s.functions[qualified] = def
	return def, true
}

func (s *System) rewriteFunctionSource(def *FunctionDef) {
	row := s.functionTable.GetByID(def.ID)
	if row == nil {
		return
	}
	s.functionTable.Remove(row)
	row.Vals[2] = sqlvalue.Str(def.Source)
	s.functionTable.Insert(row)
}

// GetFunction returns a function definition by qualified name, or nil.
func (s *System) GetFunction(schema, name string) *FunctionDef { return s.functions[schema+"."+name] }

// Tables returns every open TableDef sorted by qualified name, so callers
// that need a stable order (VerifyDB's digest, a maintenance sweep)
// don't inherit Go's randomized map iteration.
func (s *System) Tables() []*TableDef {
	out := make([]*TableDef, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *TableDef) int {
		return strings.Compare(a.SchemaName+"."+a.Name, b.SchemaName+"."+b.Name)
	})
	return out
}

// SystemTables returns the six bootstrap tables themselves, so Save can
// flush them too.
func (s *System) SystemTables() []*Table {
	return []*Table{s.schemaTable, s.tableTable, s.columnTable, s.indexTable, s.indexColTable, s.functionTable}
}

// Save rewrites every user table's sys.Table row whose root LPN or
// id-generator value has changed since it was last persisted (inserts
// bump the id generator; root splits via growRoot and Database.RepackFile
// both keep a table's root LPN where it was).
func (s *System) Save() {
	for _, td := range s.tables {
		idGen, dirty := td.Table.IdGen()
		newRoot := td.Table.Root()
		if !dirty && newRoot == td.Root {
			continue
		}
		row := s.tableTable.GetByID(td.ID)
		if row == nil {
			continue
		}
		s.tableTable.Remove(row)
		row.Vals[2] = sqlvalue.Int(int64(newRoot))
		row.Vals[3] = sqlvalue.Int(idGen)
		s.tableTable.Insert(row)
		td.Root = newRoot
		td.IDGen = idGen
		td.Table.ClearIdGenDirty()
	}
}
