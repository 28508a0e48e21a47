// Package sqleval executes parsed statements against an open catalog.System,
// driving table scans, index lookups, row mutation and SELECT output.
//
// What: Execute runs one parsed batch (sqlparse.Stmt list) against the
// catalog, compiling each statement's expressions via sqlcompile just
// before it runs.
// How: Scoped down from the source design's generic stack-machine
// instruction list (PushConst/Jump/Call/...) to direct per-statement-kind
// interpretation: CREATE/INSERT/SELECT/UPDATE/DELETE are the statements
// sqlparse currently produces, so Execute switches on Stmt type rather
// than stepping a bytecode tape. The index-selection heuristic (longest
// equality-prefix match, catalog.ChooseIndex) and row mutation mirror the
// source exactly; control-flow/stored-procedure bytecode (FOR/IF/WHILE,
// function calls) is the scope this reduction leaves for a later
// increment — see DESIGN.md.
// Why: A direct per-statement interpreter keeps the bulk of the source's
// real complexity (index selection, row/byte-code lifecycle, AVL/B-tree
// storage) faithfully ported while avoiding a second, parallel VM design
// whose main payoff (stored procedures with control flow) sits outside
// this pass's statement set.
package sqleval

import (
	"fmt"

	"github.com/barrowdb/barrow/internal/catalog"
	"github.com/barrowdb/barrow/internal/sqlbuiltin"
	"github.com/barrowdb/barrow/internal/sqlcompile"
	"github.com/barrowdb/barrow/internal/sqlparse"
	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/txn"
)

// Evaluator executes statements against one open catalog.System.
type Evaluator struct {
	sys      *catalog.System
	builtins *sqlbuiltin.Registry
	db       sqlcompile.DatabaseOps
}

func New(sys *catalog.System, builtins *sqlbuiltin.Registry, db sqlcompile.DatabaseOps) *Evaluator {
	return &Evaluator{sys: sys, builtins: builtins, db: db}
}

// Execute runs every statement in stmts against t in order, stopping (and
// returning the error) at the first failure.
func (ev *Evaluator) Execute(stmts []sqlparse.Stmt, t txn.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	for _, s := range stmts {
		ev.execOne(s, t)
	}
	return nil
}

func (ev *Evaluator) execOne(s sqlparse.Stmt, t txn.Transaction) {
	switch st := s.(type) {
	case sqlparse.CreateSchemaStmt:
		ev.sys.CreateSchema(st.Name)
	case sqlparse.CreateTableStmt:
		ev.execCreateTable(st)
	case sqlparse.CreateIndexStmt:
		ev.execCreateIndex(st)
	case sqlparse.InsertStmt:
		ev.execInsert(st)
	case sqlparse.SelectStmt:
		ev.execSelect(st, t)
	case sqlparse.UpdateStmt:
		ev.execUpdate(st)
	case sqlparse.DeleteStmt:
		ev.execDelete(st)
	default:
		panic(fmt.Sprintf("sqleval: unsupported statement %T", s))
	}
}

func (ev *Evaluator) schemaOf(name string) string {
	if name == "" {
		return "sys"
	}
	return name
}

func (ev *Evaluator) execCreateTable(st sqlparse.CreateTableStmt) {
	schema := ev.schemaOf(st.Schema)
	info := catalog.NewColInfo(schema + "." + st.Name)
	for _, c := range st.Columns {
		info.Add(c.Name, c.Type)
	}
	ev.sys.CreateTable(schema, st.Name, info)
}

func (ev *Evaluator) execCreateIndex(st sqlparse.CreateIndexStmt) {
	schema := ev.schemaOf(st.Schema)
	td := ev.sys.GetTable(schema, st.Table)
	if td == nil {
		panic(fmt.Sprintf("sqleval: no such table %s.%s", schema, st.Table))
	}
	cols := make([]int, len(st.Columns))
	for i, name := range st.Columns {
		col := td.Table.Info.Get(name)
		if col < 0 {
			panic(fmt.Sprintf("sqleval: no such column %q", name))
		}
		cols[i] = col
	}
	ev.sys.CreateIndex(schema, st.Table, st.Name, cols)
}

func (ev *Evaluator) table(schema, name string) *catalog.Table {
	schema = ev.schemaOf(schema)
	td := ev.sys.GetTable(schema, name)
	if td == nil {
		panic(fmt.Sprintf("sqleval: no such table %s.%s", schema, name))
	}
	return td.Table
}

func (ev *Evaluator) execInsert(st sqlparse.InsertStmt) {
	tbl := ev.table(st.Schema, st.Table)
	row := catalog.NewRow(tbl.Info)
	row.ID = tbl.AllocID()
	ctx := &sqlcompile.EvalContext{Builtins: ev.builtins, DB: ev.db}
	for i, colName := range st.Columns {
		col := tbl.Info.Get(colName)
		if col < 0 {
			panic(fmt.Sprintf("sqleval: no such column %q", colName))
		}
		cexp, err := sqlcompile.Compile(st.Values[i], nil)
		if err != nil {
			panic(err)
		}
		row.Vals[col] = cexp(ctx)
	}
	tbl.Insert(row)
	ev.db.NoteLastID(row.ID)
}

func (ev *Evaluator) execSelect(st sqlparse.SelectStmt, t txn.Transaction) {
	t.Columns(columnNames(st))
	if st.Table == "" {
		ctx := &sqlcompile.EvalContext{Builtins: ev.builtins, DB: ev.db, Txn: t}
		vals := make([]sqlvalue.Value, len(st.Exprs))
		for i, e := range st.Exprs {
			cexp, err := sqlcompile.Compile(e, nil)
			if err != nil {
				panic(err)
			}
			vals[i] = cexp(ctx)
		}
		t.Selected(vals)
		return
	}
	tbl := ev.table(st.Schema, st.Table)
	exprs := make([]sqlcompile.CExp, len(st.Exprs))
	for i, e := range st.Exprs {
		cexp, err := sqlcompile.Compile(e, tbl.Info)
		if err != nil {
			panic(err)
		}
		exprs[i] = cexp
	}
	rows := ev.matchingRows(tbl, st.Where)
	for _, row := range rows {
		ctx := &sqlcompile.EvalContext{Row: row, Builtins: ev.builtins, DB: ev.db, Txn: t}
		vals := make([]sqlvalue.Value, len(exprs))
		for i, cexp := range exprs {
			vals[i] = cexp(ctx)
		}
		t.Selected(vals)
	}
}

// columnNames derives each output column's display name: its alias if the
// query gave one, else its bare column reference, else a positional
// fallback for computed expressions.
func columnNames(st sqlparse.SelectStmt) []string {
	names := make([]string, len(st.Exprs))
	for i, e := range st.Exprs {
		if i < len(st.ColAliases) && st.ColAliases[i] != "" {
			names[i] = st.ColAliases[i]
			continue
		}
		if e.Kind == sqlvalue.ExprColName {
			names[i] = e.ColName
			continue
		}
		names[i] = fmt.Sprintf("col%d", i+1)
	}
	return names
}

func (ev *Evaluator) execUpdate(st sqlparse.UpdateStmt) {
	tbl := ev.table(st.Schema, st.Table)
	setCols := make([]int, len(st.SetCols))
	setExprs := make([]sqlcompile.CExp, len(st.SetExprs))
	for i, name := range st.SetCols {
		col := tbl.Info.Get(name)
		if col < 0 {
			panic(fmt.Sprintf("sqleval: no such column %q", name))
		}
		setCols[i] = col
		cexp, err := sqlcompile.Compile(st.SetExprs[i], tbl.Info)
		if err != nil {
			panic(err)
		}
		setExprs[i] = cexp
	}
	rows := ev.matchingRows(tbl, st.Where)
	ctx := &sqlcompile.EvalContext{Builtins: ev.builtins, DB: ev.db}
	for _, row := range rows {
		ctx.Row = row
		tbl.Remove(row)
		for i, col := range setCols {
			row.Vals[col] = setExprs[i](ctx)
		}
		tbl.Insert(row)
	}
}

func (ev *Evaluator) execDelete(st sqlparse.DeleteStmt) {
	tbl := ev.table(st.Schema, st.Table)
	rows := ev.matchingRows(tbl, st.Where)
	for _, row := range rows {
		tbl.Remove(row)
	}
}

// matchingRows resolves WHERE, preferring an index per spec §4.H's
// longest-equality-prefix heuristic, falling back to id equality, else a
// full scan filtered by a compiled residual predicate.
func (ev *Evaluator) matchingRows(tbl *catalog.Table, where *sqlvalue.Expr) []*catalog.Row {
	if where == nil {
		return tbl.Scan()
	}
	known := extractEqualityConstants(where, tbl.Info)
	if choice := catalog.ChooseIndex(tbl, known); choice != nil {
		ids := choice.Index.Lookup(choice.Keys)
		rows := make([]*catalog.Row, 0, len(ids))
		for _, id := range ids {
			if row := tbl.GetByID(id); row != nil {
				rows = append(rows, row)
			}
		}
		return filterResidual(rows, where, tbl.Info, ev.builtins, ev.db)
	}
	if id, ok := equalsID(where); ok {
		if row := tbl.GetByID(id); row != nil {
			return []*catalog.Row{row}
		}
		return nil
	}
	return filterResidual(tbl.Scan(), where, tbl.Info, ev.builtins, ev.db)
}

func filterResidual(rows []*catalog.Row, where *sqlvalue.Expr, info *catalog.ColInfo, builtins *sqlbuiltin.Registry, db sqlcompile.DatabaseOps) []*catalog.Row {
	cexp, err := sqlcompile.Compile(where, info)
	if err != nil {
		panic(err)
	}
	out := rows[:0]
	for _, row := range rows {
		ctx := &sqlcompile.EvalContext{Row: row, Builtins: builtins, DB: db}
		if cexp(ctx).BoolVal() {
			out = append(out, row)
		}
	}
	return out
}

// extractEqualityConstants collects columns fixed to a constant by a
// top-level chain of AND'd equalities, the same "known columns" set the
// source's get_known_cols computes.
func extractEqualityConstants(e *sqlvalue.Expr, info *catalog.ColInfo) map[int]sqlvalue.Value {
	known := make(map[int]sqlvalue.Value)
	var walk func(*sqlvalue.Expr)
	walk = func(e *sqlvalue.Expr) {
		if e.Kind != sqlvalue.ExprBinary {
			return
		}
		if e.Op == sqlvalue.OpAnd {
			walk(e.Children[0])
			walk(e.Children[1])
			return
		}
		if e.Op != sqlvalue.OpEqual {
			return
		}
		l, r := e.Children[0], e.Children[1]
		if l.Kind == sqlvalue.ExprColName && r.Kind == sqlvalue.ExprConst && l.ColName != "Id" {
			if col := info.Get(l.ColName); col >= 0 {
				known[col] = r.ConstVal
			}
		} else if r.Kind == sqlvalue.ExprColName && l.Kind == sqlvalue.ExprConst && r.ColName != "Id" {
			if col := info.Get(r.ColName); col >= 0 {
				known[col] = l.ConstVal
			}
		}
	}
	walk(e)
	return known
}

func equalsID(e *sqlvalue.Expr) (int64, bool) {
	if e.Kind != sqlvalue.ExprBinary || e.Op != sqlvalue.OpEqual {
		return 0, false
	}
	l, r := e.Children[0], e.Children[1]
	if l.Kind == sqlvalue.ExprColName && l.ColName == "Id" && r.Kind == sqlvalue.ExprConst {
		return r.ConstVal.Int(), true
	}
	if r.Kind == sqlvalue.ExprColName && r.ColName == "Id" && l.Kind == sqlvalue.ExprConst {
		return l.ConstVal.Int(), true
	}
	return 0, false
}
