// Package catalog implements the row/column layer above sortedfile: typed
// column layout (ColInfo), row encode/decode (Row), tables and secondary
// indexes (Table, Index), and the index-selection heuristic used by the
// compiler to pick a scan strategy for a WHERE clause.
package catalog

import (
	"github.com/barrowdb/barrow/internal/sqlvalue"
)

// ColInfo describes a table's (or index key's) columns: names, declared
// types and their cumulative byte offsets within a row.
type ColInfo struct {
	Name    string
	ColName []string
	ColType []sqlvalue.DataType
	off     []int
	Total   int // total row byte width, including the 8-byte id prefix.
}

// NewColInfo constructs an empty ColInfo for a table/index named name; id
// occupies the first 8 bytes of every row.
func NewColInfo(name string) *ColInfo {
	return &ColInfo{Name: name, Total: 8}
}

// Add appends a column, returning its column number.
func (ci *ColInfo) Add(name string, typ sqlvalue.DataType) int {
	n := len(ci.ColName)
	ci.ColName = append(ci.ColName, name)
	ci.ColType = append(ci.ColType, typ)
	ci.off = append(ci.off, ci.Total)
	ci.Total += sqlvalue.DataSize(typ)
	return n
}

// Get returns the column number for name, or -1 if absent. Column number
// -1 is reserved by callers to mean the implicit Id column.
func (ci *ColInfo) Get(name string) int {
	for i, n := range ci.ColName {
		if n == name {
			return i
		}
	}
	return -1
}

// Offset returns the byte offset of column col within a row.
func (ci *ColInfo) Offset(col int) int { return ci.off[col] }

// Count returns the number of declared columns (excluding Id).
func (ci *ColInfo) Count() int { return len(ci.ColName) }

// Clone returns a deep-enough copy of ci suitable as the starting point for
// an ALTER TABLE rebuild (add/drop/modify columns independently of the
// original).
func (ci *ColInfo) Clone(newName string) *ColInfo {
	out := NewColInfo(newName)
	for i, n := range ci.ColName {
		out.Add(n, ci.ColType[i])
	}
	return out
}
