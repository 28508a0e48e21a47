// Package txn defines the host-supplied Transaction contract: the sink for
// SELECT output, parameter source, and error carrier for one Database.Run
// call.
//
// What: Transaction is implemented by whatever embeds the database (an
// HTTP handler, a REPL, a test harness); the evaluator calls it for
// SELECT rows and the ARG/HEADER/GLOBAL/... builtins.
// How: Mirrors the source trait's default-method shape via
// DefaultTransaction, an embeddable struct providing no-op/zero-value
// implementations for every optional method so a minimal embedder need
// only implement Selected and SetError.
// Why: Keeping the evaluator's only external dependency this narrow is
// what lets the same Database run headless (tests, REPL) or behind an
// HTTP adapter without the storage/SQL core knowing which.
package txn

import (
	"github.com/google/uuid"

	"github.com/barrowdb/barrow/internal/sqlvalue"
)

// ArgKind selects which request-parameter namespace Arg reads from.
type ArgKind int64

const (
	ArgPath ArgKind = iota
	ArgQuery
	ArgForm
	ArgCookie
	ArgMethod ArgKind = 99
)

// GlobalKind selects which host-provided global Global returns.
type GlobalKind int64

const (
	GlobalRequestTimeMicros GlobalKind = iota
)

// Transaction is the host's sink/source for one Database.Run call.
type Transaction interface {
	// Columns is called once per SELECT, before any Selected call, with
	// the output column names (aliased where the query gave one).
	Columns(names []string)
	// Selected is called once per SELECT output row.
	Selected(values []sqlvalue.Value)
	// SetError records the most recent panic/error message.
	SetError(err string)

	StatusCode(code int64)
	Header(name, value string)
	Global(kind GlobalKind) int64
	Arg(kind ArgKind, name string) string
	FileAttr(fileNum int64, attr int64) string
	FileContent(fileNum int64) []byte
	GetError() string
}

// DefaultTransaction supplies no-op/zero-value implementations for every
// Transaction method except Selected and SetError, which an embedder must
// still implement. Embed this in a concrete Transaction to pick up
// sensible defaults for the request-adapter-only methods.
type DefaultTransaction struct{}

func (DefaultTransaction) Columns([]string)          {}
func (DefaultTransaction) StatusCode(int64)          {}
func (DefaultTransaction) Header(string, string)     {}
func (DefaultTransaction) Global(GlobalKind) int64    { return 0 }
func (DefaultTransaction) Arg(ArgKind, string) string { return "" }
func (DefaultTransaction) FileAttr(int64, int64) string { return "" }
func (DefaultTransaction) FileContent(int64) []byte  { return nil }
func (DefaultTransaction) GetError() string          { return "" }

// Dummy is a Transaction that logs SELECT output and errors to stdout via
// the caller-supplied sinks; used for database initialisation (running
// initsql) where there is no real host transaction yet.
type Dummy struct {
	DefaultTransaction
	OnSelected func([]sqlvalue.Value)
	OnError    func(string)
}

func (d *Dummy) Selected(values []sqlvalue.Value) {
	if d.OnSelected != nil {
		d.OnSelected(values)
	}
}

func (d *Dummy) SetError(err string) {
	if d.OnError != nil {
		d.OnError(err)
	}
}

// GenTransaction is a Dummy transaction stamped with a stable generated
// request id, for hosts (the REPL, test harnesses) that want to trace a
// Database.Run call without wiring a real HTTP request.
type GenTransaction struct {
	Dummy
	RequestID string
}

// NewGenTransaction builds a GenTransaction with a fresh request id.
func NewGenTransaction(onSelected func([]sqlvalue.Value), onError func(string)) *GenTransaction {
	return &GenTransaction{
		Dummy:     Dummy{OnSelected: onSelected, OnError: onError},
		RequestID: uuid.NewString(),
	}
}
