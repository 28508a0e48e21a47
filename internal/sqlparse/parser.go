package sqlparse

import (
	"fmt"
	"strings"

	"github.com/barrowdb/barrow/internal/sqlvalue"
)

// ColumnDef is one parsed CREATE TABLE column declaration.
type ColumnDef struct {
	Name string
	Type sqlvalue.DataType
}

// Stmt is any parsed statement.
type Stmt interface{ stmt() }

type CreateSchemaStmt struct{ Name string }
type CreateTableStmt struct {
	Schema, Name string
	Columns      []ColumnDef
}
type CreateIndexStmt struct {
	Schema, Table, Name string
	Columns              []string
}
type InsertStmt struct {
	Schema, Table string
	Columns       []string
	Values        []*sqlvalue.Expr
}
type SelectStmt struct {
	Exprs       []*sqlvalue.Expr
	ColAliases  []string
	Schema, Table string
	Where       *sqlvalue.Expr
}
type UpdateStmt struct {
	Schema, Table string
	SetCols       []string
	SetExprs      []*sqlvalue.Expr
	Where         *sqlvalue.Expr
}
type DeleteStmt struct {
	Schema, Table string
	Where         *sqlvalue.Expr
}

func (CreateSchemaStmt) stmt() {}
func (CreateTableStmt) stmt()  {}
func (CreateIndexStmt) stmt()  {}
func (InsertStmt) stmt()       {}
func (SelectStmt) stmt()       {}
func (UpdateStmt) stmt()       {}
func (DeleteStmt) stmt()       {}

// Parser turns a batch of SQL text into a list of Stmt, stopping at a GO
// token or end of input.
type Parser struct {
	lex *Lexer
	tok Token
}

func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	return p
}

func (p *Parser) advance() { p.tok = p.lex.Next() }

func (p *Parser) errorf(format string, args ...interface{}) {
	panic(fmt.Sprintf("sql parse error at %d: %s", p.tok.Pos, fmt.Sprintf(format, args...)))
}

func (p *Parser) isKeyword(kw string) bool {
	return p.tok.Kind == TokIdent && strings.EqualFold(p.tok.Text, kw)
}

func (p *Parser) expectKeyword(kw string) {
	if !p.isKeyword(kw) {
		p.errorf("expected %s, got %q", kw, p.tok.Text)
	}
	p.advance()
}

func (p *Parser) expectOp(op string) {
	if p.tok.Kind != TokOp || p.tok.Text != op {
		p.errorf("expected %q, got %q", op, p.tok.Text)
	}
	p.advance()
}

func (p *Parser) isOp(op string) bool { return p.tok.Kind == TokOp && p.tok.Text == op }

func (p *Parser) identName() string {
	if p.tok.Kind != TokIdent {
		p.errorf("expected identifier, got %q", p.tok.Text)
	}
	s := p.tok.Text
	p.advance()
	return s
}

// qualifiedName parses `schema.name` or a bare `name` (schema defaults to
// "").
func (p *Parser) qualifiedName(defaultSchema string) (schema, name string) {
	first := p.identName()
	if p.isOp(".") {
		p.advance()
		return first, p.identName()
	}
	return defaultSchema, first
}

// ParseBatch parses statements up to a GO token or EOF.
func (p *Parser) ParseBatch() (stmts []Stmt, done bool) {
	for {
		if p.tok.Kind == TokEOF {
			return stmts, true
		}
		if p.tok.Kind == TokGo {
			p.advance()
			return stmts, false
		}
		if p.isOp(";") {
			p.advance()
			continue
		}
		stmts = append(stmts, p.parseStatement())
	}
}

func (p *Parser) parseStatement() Stmt {
	switch {
	case p.isKeyword("CREATE"):
		return p.parseCreate()
	case p.isKeyword("INSERT"):
		return p.parseInsert()
	case p.isKeyword("SELECT"):
		return p.parseSelect()
	case p.isKeyword("UPDATE"):
		return p.parseUpdate()
	case p.isKeyword("DELETE"):
		return p.parseDelete()
	default:
		p.errorf("unsupported statement starting %q", p.tok.Text)
		return nil
	}
}

func (p *Parser) parseCreate() Stmt {
	p.advance() // CREATE
	switch {
	case p.isKeyword("SCHEMA"):
		p.advance()
		name := p.identName()
		return CreateSchemaStmt{Name: name}
	case p.isKeyword("TABLE"):
		p.advance()
		schema, name := p.qualifiedName("")
		p.expectOp("(")
		var cols []ColumnDef
		for {
			cname := p.identName()
			ctype := p.parseTypeName()
			cols = append(cols, ColumnDef{Name: cname, Type: ctype})
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
		p.expectOp(")")
		return CreateTableStmt{Schema: schema, Name: name, Columns: cols}
	case p.isKeyword("INDEX"):
		p.advance()
		indexName := p.identName()
		p.expectKeyword("ON")
		schema, table := p.qualifiedName("")
		p.expectOp("(")
		var cols []string
		for {
			cols = append(cols, p.identName())
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
		p.expectOp(")")
		return CreateIndexStmt{Schema: schema, Table: table, Name: indexName, Columns: cols}
	default:
		p.errorf("expected SCHEMA/TABLE/INDEX after CREATE, got %q", p.tok.Text)
		return nil
	}
}

func (p *Parser) parseTypeName() sqlvalue.DataType {
	name := p.identName()
	size := 0
	if p.isOp("(") {
		p.advance()
		if p.tok.Kind != TokNumber {
			p.errorf("expected size in type declaration")
		}
		_, i, _, err := ParseNumber(p.tok.Text)
		if err != nil {
			p.errorf("bad type size: %v", err)
		}
		size = int(i)
		p.advance()
		p.expectOp(")")
	}
	switch strings.ToUpper(name) {
	case "INT":
		if size == 0 {
			size = 8
		}
		return sqlvalue.NewDataType(sqlvalue.KindInt, size)
	case "FLOAT":
		return sqlvalue.NewDataType(sqlvalue.KindFloat, 4)
	case "DOUBLE":
		return sqlvalue.NewDataType(sqlvalue.KindFloat, 8)
	case "STRING":
		if size == 0 {
			size = 64
		}
		return sqlvalue.NewDataType(sqlvalue.KindString, size)
	case "BINARY":
		if size == 0 {
			size = 64
		}
		return sqlvalue.NewDataType(sqlvalue.KindBinary, size)
	case "BOOL":
		return sqlvalue.NewDataType(sqlvalue.KindBool, 0)
	default:
		p.errorf("unknown type %q", name)
		return 0
	}
}

func (p *Parser) parseInsert() Stmt {
	p.advance() // INSERT
	p.expectKeyword("INTO")
	schema, table := p.qualifiedName("")
	var cols []string
	p.expectOp("(")
	for {
		cols = append(cols, p.identName())
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(")")
	p.expectKeyword("VALUES")
	p.expectOp("(")
	var vals []*sqlvalue.Expr
	for {
		vals = append(vals, p.parseExpr())
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(")")
	return InsertStmt{Schema: schema, Table: table, Columns: cols, Values: vals}
}

func (p *Parser) parseSelect() Stmt {
	p.advance() // SELECT
	var exprs []*sqlvalue.Expr
	var aliases []string
	for {
		e := p.parseExpr()
		alias := ""
		if p.isKeyword("AS") {
			p.advance()
			alias = p.identName()
		} else if e.Kind == sqlvalue.ExprColName {
			alias = e.ColName
		}
		exprs = append(exprs, e)
		aliases = append(aliases, alias)
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	var schema, table string
	if p.isKeyword("FROM") {
		p.advance()
		schema, table = p.qualifiedName("")
	}
	var where *sqlvalue.Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where = p.parseExpr()
	}
	return SelectStmt{Exprs: exprs, ColAliases: aliases, Schema: schema, Table: table, Where: where}
}

func (p *Parser) parseUpdate() Stmt {
	p.advance() // UPDATE
	schema, table := p.qualifiedName("")
	p.expectKeyword("SET")
	var cols []string
	var exprs []*sqlvalue.Expr
	for {
		cols = append(cols, p.identName())
		p.expectOp("=")
		exprs = append(exprs, p.parseExpr())
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	var where *sqlvalue.Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where = p.parseExpr()
	}
	return UpdateStmt{Schema: schema, Table: table, SetCols: cols, SetExprs: exprs, Where: where}
}

func (p *Parser) parseDelete() Stmt {
	p.advance() // DELETE
	p.expectKeyword("FROM")
	schema, table := p.qualifiedName("")
	var where *sqlvalue.Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where = p.parseExpr()
	}
	return DeleteStmt{Schema: schema, Table: table, Where: where}
}

// --- expression parsing: standard precedence climbing. ---

var precedence = map[string]int{
	"OR": 1, "AND": 2,
	"=": 3, "<>": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "%": 5,
}

func (p *Parser) opText() (string, bool) {
	if p.tok.Kind == TokOp {
		return p.tok.Text, true
	}
	if p.tok.Kind == TokIdent && (strings.EqualFold(p.tok.Text, "AND") || strings.EqualFold(p.tok.Text, "OR")) {
		return strings.ToUpper(p.tok.Text), true
	}
	return "", false
}

func (p *Parser) parseExpr() *sqlvalue.Expr { return p.parseBinary(0) }

func (p *Parser) parseBinary(minPrec int) *sqlvalue.Expr {
	left := p.parseUnary()
	for {
		opText, ok := p.opText()
		if !ok {
			break
		}
		prec, known := precedence[opText]
		if !known || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		left = sqlvalue.NewBinary(binOpFor(opText), left, right)
	}
	return left
}

func binOpFor(s string) sqlvalue.BinaryOp {
	switch s {
	case "+":
		return sqlvalue.OpAdd
	case "-":
		return sqlvalue.OpSub
	case "*":
		return sqlvalue.OpMul
	case "/":
		return sqlvalue.OpDiv
	case "%":
		return sqlvalue.OpPercent
	case "=":
		return sqlvalue.OpEqual
	case "<>", "!=":
		return sqlvalue.OpNotEqual
	case "<":
		return sqlvalue.OpLess
	case "<=":
		return sqlvalue.OpLessEqual
	case ">":
		return sqlvalue.OpGreater
	case ">=":
		return sqlvalue.OpGreaterEqual
	case "AND":
		return sqlvalue.OpAnd
	case "OR":
		return sqlvalue.OpOr
	default:
		panic("sqlparse: unknown operator " + s)
	}
}

func (p *Parser) parseUnary() *sqlvalue.Expr {
	if p.isOp("-") {
		p.advance()
		return sqlvalue.NewMinus(p.parseUnary())
	}
	if p.isKeyword("NOT") {
		p.advance()
		return sqlvalue.NewNot(p.parseUnary())
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() *sqlvalue.Expr {
	switch p.tok.Kind {
	case TokNumber:
		text := p.tok.Text
		p.advance()
		isFloat, i, f, err := ParseNumber(text)
		if err != nil {
			p.errorf("bad number %q: %v", text, err)
		}
		if isFloat {
			return sqlvalue.NewConst(sqlvalue.Float(f))
		}
		return sqlvalue.NewConst(sqlvalue.Int(i))
	case TokHex:
		text := p.tok.Text
		p.advance()
		v, err := parseHex(text)
		if err != nil {
			p.errorf("bad hex literal %q: %v", text, err)
		}
		return sqlvalue.NewConst(sqlvalue.Int(v))
	case TokString:
		s := p.tok.Text
		p.advance()
		return sqlvalue.NewConst(sqlvalue.Str(s))
	case TokOp:
		if p.tok.Text == "(" {
			p.advance()
			e := p.parseExpr()
			p.expectOp(")")
			return e
		}
		p.errorf("unexpected token %q", p.tok.Text)
	case TokIdent:
		if strings.EqualFold(p.tok.Text, "TRUE") {
			p.advance()
			return sqlvalue.NewConst(sqlvalue.Bool(true))
		}
		if strings.EqualFold(p.tok.Text, "FALSE") {
			p.advance()
			return sqlvalue.NewConst(sqlvalue.Bool(false))
		}
		if strings.EqualFold(p.tok.Text, "ID") {
			p.advance()
			e := sqlvalue.NewColName("Id")
			e.Col = -1
			return e
		}
		name := p.identName()
		if p.isOp("(") {
			p.advance()
			var args []*sqlvalue.Expr
			if !p.isOp(")") {
				for {
					args = append(args, p.parseExpr())
					if p.isOp(",") {
						p.advance()
						continue
					}
					break
				}
			}
			p.expectOp(")")
			return &sqlvalue.Expr{Kind: sqlvalue.ExprBuiltinCall, FuncName: strings.ToUpper(name), Args: args}
		}
		return sqlvalue.NewColName(name)
	}
	p.errorf("unexpected token %q", p.tok.Text)
	return nil
}
