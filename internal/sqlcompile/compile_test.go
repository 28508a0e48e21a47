package sqlcompile

import (
	"testing"

	"github.com/barrowdb/barrow/internal/catalog"
	"github.com/barrowdb/barrow/internal/sqlvalue"
)

func newTestRow() (*catalog.ColInfo, *catalog.Row) {
	info := catalog.NewColInfo("t")
	info.Add("a", sqlvalue.NewDataType(sqlvalue.KindInt, 8))
	info.Add("b", sqlvalue.NewDataType(sqlvalue.KindString, 32))
	row := catalog.NewRow(info)
	row.ID = 7
	row.Vals[0] = sqlvalue.Int(10)
	row.Vals[1] = sqlvalue.Str("hi")
	return info, row
}

func TestCompileConstant(t *testing.T) {
	c, err := Compile(sqlvalue.NewConst(sqlvalue.Int(42)), nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{}); got.Int() != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestCompileColumnReference(t *testing.T) {
	info, row := newTestRow()
	c, err := Compile(sqlvalue.NewColName("a"), info)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{Row: row}); got.Int() != 10 {
		t.Fatalf("got %v, want 10", got)
	}
}

func TestCompileIdColumn(t *testing.T) {
	info, row := newTestRow()
	c, err := Compile(sqlvalue.NewColName("Id"), info)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{Row: row}); got.Int() != 7 {
		t.Fatalf("got %v, want 7", got)
	}
}

func TestCompileUnknownColumnErrors(t *testing.T) {
	info, _ := newTestRow()
	if _, err := Compile(sqlvalue.NewColName("nosuch"), info); err == nil {
		t.Fatal("expected an error compiling an unknown column name")
	}
}

func TestCompileBinaryArithmetic(t *testing.T) {
	info, row := newTestRow()
	e := sqlvalue.NewBinary(sqlvalue.OpAdd, sqlvalue.NewColName("a"), sqlvalue.NewConst(sqlvalue.Int(5)))
	c, err := Compile(e, info)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{Row: row}); got.Int() != 15 {
		t.Fatalf("got %v, want 15", got)
	}
}

func TestCompileComparison(t *testing.T) {
	info, row := newTestRow()
	e := sqlvalue.NewBinary(sqlvalue.OpEqual, sqlvalue.NewColName("a"), sqlvalue.NewConst(sqlvalue.Int(10)))
	c, err := Compile(e, info)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{Row: row}); !got.BoolVal() {
		t.Fatal("expected a = 10 to be true")
	}
}

func TestCompileAndShortCircuits(t *testing.T) {
	info, row := newTestRow()
	// The right operand reads local 0; the context below has no locals, so
	// evaluating it would panic.
	e := sqlvalue.NewBinary(sqlvalue.OpAnd,
		sqlvalue.NewConst(sqlvalue.Bool(false)),
		&sqlvalue.Expr{Kind: sqlvalue.ExprLocal, LocalIndex: 0})
	c, err := Compile(e, info)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{Row: row}); got.BoolVal() {
		t.Fatal("expected false AND x to be false")
	}
}

func TestCompileNot(t *testing.T) {
	c, err := Compile(sqlvalue.NewNot(sqlvalue.NewConst(sqlvalue.Bool(false))), nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !c(&EvalContext{}).BoolVal() {
		t.Fatal("expected NOT false to be true")
	}
}

func TestCompileMinus(t *testing.T) {
	c, err := Compile(sqlvalue.NewMinus(sqlvalue.NewConst(sqlvalue.Int(5))), nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if c(&EvalContext{}).Int() != -5 {
		t.Fatalf("got %v, want -5", c(&EvalContext{}).Int())
	}
}

func TestCompileCaseWhenElse(t *testing.T) {
	e := &sqlvalue.Expr{
		Kind: sqlvalue.ExprCase,
		CaseWhens: []sqlvalue.CaseArm{
			{When: sqlvalue.NewConst(sqlvalue.Bool(false)), Then: sqlvalue.NewConst(sqlvalue.Int(1))},
			{When: nil, Then: sqlvalue.NewConst(sqlvalue.Int(2))},
		},
	}
	c, err := Compile(e, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c(&EvalContext{}); got.Int() != 2 {
		t.Fatalf("got %v, want 2 (the else branch)", got)
	}
}

type stubRegistry struct{ fn sqlcompileFunc }

type sqlcompileFunc = func(ctx *EvalContext, args []sqlvalue.Value) sqlvalue.Value

func (s stubRegistry) Lookup(name string) (BuiltinFunc, bool) {
	if name == "DOUBLE" {
		return s.fn, true
	}
	return nil, false
}

func TestCompileBuiltinCall(t *testing.T) {
	e := &sqlvalue.Expr{
		Kind:     sqlvalue.ExprBuiltinCall,
		FuncName: "DOUBLE",
		Args:     []*sqlvalue.Expr{sqlvalue.NewConst(sqlvalue.Int(21))},
	}
	c, err := Compile(e, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	reg := stubRegistry{fn: func(ctx *EvalContext, args []sqlvalue.Value) sqlvalue.Value {
		return sqlvalue.Int(args[0].Int() * 2)
	}}
	if got := c(&EvalContext{Builtins: reg}); got.Int() != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}
