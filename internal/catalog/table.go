package catalog

import (
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/sortedfile"
)

// Table is a database base table: its row storage plus any secondary
// indexes built over it.
type Table struct {
	ID       int64
	Info     *ColInfo
	file     *sortedfile.SortedFile
	indexes  []*Index
	idGen    int64
	idGenDirty bool
	codec    Codec
}

// NewTable opens (or creates, if rootPage is 0) a table's row storage.
func NewTable(access *pager.Access, id int64, rootPage uint64, idGen int64, info *ColInfo, codec Codec) *Table {
	file := sortedfile.Open(access, rootPage, info.Total, func(data []byte) sortedfile.Record {
		return Load(info, data, codec)
	})
	return &Table{ID: id, Info: info, file: file, idGen: idGen, codec: codec}
}

// Root returns the table's row-storage root LPN, for persisting in the
// system catalog.
func (t *Table) Root() uint64 { return t.file.Root() }

// IdGen returns the current row-id allocator value and whether it has
// changed since the table was opened (controls whether sys.Table needs a
// rewrite on save).
func (t *Table) IdGen() (int64, bool) { return t.idGen, t.idGenDirty }

// ClearIdGenDirty marks the id generator as persisted, so the next Save
// doesn't rewrite sys.Table again until AllocID is called once more.
func (t *Table) ClearIdGenDirty() { t.idGenDirty = false }

// AllocID returns a fresh row id.
func (t *Table) AllocID() int64 {
	t.idGen++
	t.idGenDirty = true
	return t.idGen
}

// AddIndex registers an already-opened secondary index over this table.
func (t *Table) AddIndex(ix *Index) { t.indexes = append(t.indexes, ix) }

// Indexes returns the table's secondary indexes.
func (t *Table) Indexes() []*Index { return t.indexes }

// Insert adds row to the table's primary storage and every secondary
// index, assigning out-of-line codes for long column values first.
func (t *Table) Insert(row *Row) {
	row.Encode(t.codec)
	t.file.Insert(row)
	for _, ix := range t.indexes {
		ix.insertFor(row)
	}
}

// Remove deletes row (previously loaded) from storage and every index,
// then frees its out-of-line codes.
func (t *Table) Remove(row *Row) {
	t.file.Remove(row)
	for _, ix := range t.indexes {
		ix.removeFor(row)
	}
	buf := make([]byte, t.Info.Total)
	row.Save(buf)
	DelcodesFromBytes(t.Info, buf, t.codec)
}

// GetByID returns the row with the given id, or nil.
func (t *Table) GetByID(id int64) *Row {
	rec := t.file.Get(Id{ID: id})
	if rec == nil {
		return nil
	}
	return rec.(*Row)
}

// Scan returns every row in ascending id order.
func (t *Table) Scan() []*Row {
	recs := t.file.Asc()
	out := make([]*Row, len(recs))
	for i, r := range recs {
		out[i] = r.(*Row)
	}
	return out
}
