package catalog

import (
	"encoding/binary"

	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/sortedfile"
)

// Index is a secondary sorted file over a subset of a table's columns,
// plus the row id, used to accelerate equality/prefix lookups chosen by
// the index-selection heuristic in select.go.
type Index struct {
	ID    int64
	Cols  []int // table column numbers, in key order.
	table *Table
	keyInfo *ColInfo // synthetic ColInfo describing the key layout: the row id in the leading 8-byte id slot, then the Cols values in order.
	file  *sortedfile.SortedFile
}

// NewIndex opens (or creates) a secondary index over table's columns
// cols, keyed by those columns' values followed by the row id.
func NewIndex(access *pager.Access, id int64, table *Table, cols []int, rootPage uint64) *Index {
	keyInfo := NewColInfo("")
	for _, c := range cols {
		keyInfo.Add(table.Info.ColName[c], table.Info.ColType[c])
	}
	recSize := keyInfo.Total // the leading 8-byte id slot (holding the row id) plus the key columns.
	file := sortedfile.Open(access, rootPage, recSize, func(data []byte) sortedfile.Record {
		return loadIndexRow(keyInfo, cols, data)
	})
	return &Index{ID: id, Cols: cols, table: table, keyInfo: keyInfo, file: file}
}

// Root returns the index's root LPN, for persisting in sys.Index.
func (ix *Index) Root() uint64 { return ix.file.Root() }

// indexRow is an Index's sortedfile.Record: the indexed column values (in
// key order) followed by the owning row's id as a final tiebreaker column,
// so keys with equal indexed values still sort deterministically and
// remain individually removable.
type indexRow struct {
	keyInfo *ColInfo
	cols    []int
	vals    []sqlvalue.Value
	rowID   int64
}

func newIndexRowFor(keyInfo *ColInfo, cols []int, row *Row) *indexRow {
	vals := make([]sqlvalue.Value, len(cols))
	for i, c := range cols {
		vals[i] = row.Vals[c]
	}
	return &indexRow{keyInfo: keyInfo, cols: cols, vals: vals, rowID: row.ID}
}

// Compare orders by indexed column values in order, then by row id.
func (ir *indexRow) Compare(data []byte) int {
	for i, t := range ir.keyInfo.ColType {
		off := ir.keyInfo.Offset(i)
		size := sqlvalue.DataSize(t)
		other := loadValue(data[off:off+size], t, nil)
		if c := ir.vals[i].Compare(other); c != 0 {
			return c
		}
	}
	otherID := int64(binary.LittleEndian.Uint64(data[0:8]))
	switch {
	case ir.rowID < otherID:
		return -1
	case ir.rowID > otherID:
		return 1
	default:
		return 0
	}
}

// Save writes the row id (reusing the ColInfo's 8-byte id prefix) followed
// by each indexed column's value, inline only (index key columns are
// chosen by the schema designer to fit inline; long text/binary columns
// are not indexable under this design).
func (ir *indexRow) Save(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(ir.rowID))
	for i, t := range ir.keyInfo.ColType {
		off := ir.keyInfo.Offset(i)
		size := sqlvalue.DataSize(t)
		saveValue(dst[off:off+size], t, ir.vals[i], codeRef{})
	}
}

func loadIndexRow(keyInfo *ColInfo, cols []int, data []byte) *indexRow {
	id := int64(binary.LittleEndian.Uint64(data[0:8]))
	vals := make([]sqlvalue.Value, len(cols))
	for i, t := range keyInfo.ColType {
		off := keyInfo.Offset(i)
		size := sqlvalue.DataSize(t)
		vals[i] = loadValue(data[off:off+size], t, nil)
	}
	return &indexRow{keyInfo: keyInfo, cols: cols, vals: vals, rowID: id}
}

func (ix *Index) insertFor(row *Row) { ix.file.Insert(newIndexRowFor(ix.keyInfo, ix.Cols, row)) }
func (ix *Index) removeFor(row *Row) { ix.file.Remove(newIndexRowFor(ix.keyInfo, ix.Cols, row)) }

// Lookup returns the row ids of the entries whose leading indexed columns
// equal key (key may bind fewer columns than the index has), in key order,
// by scanning every entry of the index.
func (ix *Index) Lookup(key []sqlvalue.Value) []int64 {
	var out []int64
	for _, rec := range ix.file.Asc() {
		ir := rec.(*indexRow)
		match := true
		for i, v := range key {
			if !ir.vals[i].Equal(v) {
				match = false
				break
			}
		}
		if match {
			out = append(out, ir.rowID)
		}
	}
	return out
}
