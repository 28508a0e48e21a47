package catalog

import (
	"encoding/binary"
	"math"

	"github.com/barrowdb/barrow/internal/sqlvalue"
)

// Codec is the database-wide byte-coding facility a Row needs to spill
// long string/binary values out of line and read them back. The fragment
// type ft selects one of NFT size classes (see package bytestore).
type Codec interface {
	Encode(bytes []byte) (id uint64, ft int)
	Decode(id uint64, ft int, inline int) []byte
	Delcode(id uint64, ft int)
}

// Row is one table record: an id plus typed column values, together with
// the ColInfo describing how to lay it out as bytes.
type Row struct {
	Info *ColInfo
	ID   int64
	Vals []sqlvalue.Value

	// codes remembers, per column, the (id, ft) of any coded (out-of-line)
	// value, assigned by Encode or read back by Load, so Save can write the
	// code without re-encoding the value.
	codes map[int]codeRef
}

type codeRef struct {
	id uint64
	ft int
	ok bool
}

// NewRow constructs a row with every column defaulted.
func NewRow(info *ColInfo) *Row {
	vals := make([]sqlvalue.Value, info.Count())
	for i, t := range info.ColType {
		vals[i] = sqlvalue.Default(t)
	}
	return &Row{Info: info, Vals: vals}
}

// Compare implements sortedfile.Record: rows are ordered by Id.
func (r *Row) Compare(data []byte) int {
	other := int64(binary.LittleEndian.Uint64(data[0:8]))
	switch {
	case r.ID < other:
		return -1
	case r.ID > other:
		return 1
	default:
		return 0
	}
}

// Save implements sortedfile.Record: writes id + every column in layout
// order. Encode must be called first for any column whose value needs a
// fresh out-of-line code; Save only ever writes already-resolved codes.
func (r *Row) Save(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(r.ID))
	for i, t := range r.Info.ColType {
		off := r.Info.Offset(i)
		saveValue(dst[off:off+sqlvalue.DataSize(t)], t, r.Vals[i], r.codes[i])
	}
}

// Encode assigns out-of-line codes (via codec) for any String/Binary
// column value too long to fit inline, caching them so Save can use them
// without re-encoding.
func (r *Row) Encode(codec Codec) {
	for i, t := range r.Info.ColType {
		k := t.Kind()
		if k != sqlvalue.KindString && k != sqlvalue.KindBinary {
			continue
		}
		bytes := r.Vals[i].Bin()
		size := sqlvalue.DataSize(t)
		if len(bytes) < size {
			continue // fits inline, no code needed.
		}
		id, ft := codec.Encode(bytes[size-9:])
		if r.codes == nil {
			r.codes = make(map[int]codeRef)
		}
		r.codes[i] = codeRef{id: id, ft: ft, ok: true}
	}
}

// DelcodesFromBytes frees every out-of-line code referenced by data (a
// saved row's bytes), reading each code from the on-disk coded-column
// layout rather than from a Row's Vals.
func DelcodesFromBytes(info *ColInfo, data []byte, codec Codec) {
	for i, t := range info.ColType {
		k := t.Kind()
		if k != sqlvalue.KindString && k != sqlvalue.KindBinary {
			continue
		}
		off := info.Offset(i)
		size := sqlvalue.DataSize(t)
		field := data[off : off+size]
		n := int(field[0])
		if n < size {
			continue // was inline, nothing coded.
		}
		ft := 255 - n
		id := binary.LittleEndian.Uint64(field[size-8:])
		codec.Delcode(id, ft)
	}
}

// Load reconstructs a Row from previously saved bytes, remembering the
// codes of its out-of-line values so the row can be saved again.
func Load(info *ColInfo, data []byte, codec Codec) *Row {
	r := &Row{Info: info, ID: int64(binary.LittleEndian.Uint64(data[0:8])), Vals: make([]sqlvalue.Value, info.Count())}
	for i, t := range info.ColType {
		off := info.Offset(i)
		size := sqlvalue.DataSize(t)
		r.Vals[i] = loadValue(data[off:off+size], t, codec)
		if k := t.Kind(); (k == sqlvalue.KindString || k == sqlvalue.KindBinary) && int(data[off]) >= size {
			if r.codes == nil {
				r.codes = make(map[int]codeRef)
			}
			r.codes[i] = codeRef{id: binary.LittleEndian.Uint64(data[off+size-8 : off+size]), ft: 255 - int(data[off]), ok: true}
		}
	}
	return r
}

func saveValue(dst []byte, t sqlvalue.DataType, v sqlvalue.Value, code codeRef) {
	switch t.Kind() {
	case sqlvalue.KindBool:
		if v.BoolVal() {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case sqlvalue.KindInt:
		setInt(dst, v.Int())
	case sqlvalue.KindFloat:
		if len(dst) == 8 {
			binary.LittleEndian.PutUint64(dst, math.Float64bits(v.Float()))
		} else {
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v.Float())))
		}
	case sqlvalue.KindString, sqlvalue.KindBinary:
		saveBytes(v.Bin(), dst, code)
	}
}

func loadValue(data []byte, t sqlvalue.DataType, codec Codec) sqlvalue.Value {
	switch t.Kind() {
	case sqlvalue.KindBool:
		return sqlvalue.Bool(data[0] != 0)
	case sqlvalue.KindInt:
		return sqlvalue.Int(getInt(data))
	case sqlvalue.KindFloat:
		if len(data) == 8 {
			return sqlvalue.Float(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		}
		return sqlvalue.Float(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))))
	case sqlvalue.KindString:
		bytes := loadBytes(data, codec)
		return sqlvalue.Str(string(bytes))
	case sqlvalue.KindBinary:
		bytes := loadBytes(data, codec)
		return sqlvalue.Binary(bytes)
	default:
		return sqlvalue.Value{}
	}
}

// saveBytes implements the inline-or-coded layout of spec §3.4/§6.3:
// [tag byte][n-1 bytes] when the value fits, else
// [255-ft][first size-9 bytes][8-byte code id].
func saveBytes(bytes []byte, dst []byte, code codeRef) {
	size := len(dst)
	n := len(bytes)
	if n < size {
		dst[0] = byte(n)
		copy(dst[1:1+n], bytes)
		return
	}
	if !code.ok {
		panic("catalog: row value needs a code but Encode was not called")
	}
	dst[0] = byte(255 - code.ft)
	copy(dst[1:size-8], bytes[:size-9])
	binary.LittleEndian.PutUint64(dst[size-8:], code.id)
}

func loadBytes(data []byte, codec Codec) []byte {
	size := len(data)
	n := int(data[0])
	if n < size {
		out := make([]byte, n)
		copy(out, data[1:1+n])
		return out
	}
	ft := 255 - n
	id := binary.LittleEndian.Uint64(data[size-8:])
	inline := size - 9
	out := make([]byte, inline)
	copy(out, data[1:size-8])
	rest := codec.Decode(id, ft, 0)
	return append(out, rest...)
}

func setInt(dst []byte, v int64) {
	u := uint64(v)
	for i := 0; i < len(dst); i++ {
		dst[i] = byte(u >> (8 * i))
	}
}

func getInt(data []byte) int64 {
	var u uint64
	for i := 0; i < len(data); i++ {
		u |= uint64(data[i]) << (8 * i)
	}
	// sign-extend from the declared width.
	bits := uint(len(data) * 8)
	if bits < 64 && u&(1<<(bits-1)) != 0 {
		u |= ^uint64(0) << bits
	}
	return int64(u)
}

// Id is a minimal Record used purely for row-id lookups (SortedFile.Get /
// Remove against a Table's primary file).
type Id struct{ ID int64 }

func (id Id) Compare(data []byte) int {
	other := int64(binary.LittleEndian.Uint64(data[0:8]))
	switch {
	case id.ID < other:
		return -1
	case id.ID > other:
		return 1
	default:
		return 0
	}
}

func (id Id) Save([]byte) { panic("catalog: Id is a lookup-only record") }
