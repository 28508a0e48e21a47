// Package bytestore stores variable-length byte values (oversized row
// cells, BLOB/TEXT content) as chains of fixed-size fragments inside a
// sortedfile.SortedFile, each fragment keyed by a monotonically increasing
// 64-bit id.
//
// What: Encode splits an arbitrary []byte into as many fragments as
// needed and returns the id of the first; Decode walks the chain from
// that id until a fragment marked "last"; Delcode removes the chain.
// How: Each fragment record is [8-byte id][bpf-byte payload][1-byte
// trailer], where the trailer packs how many trailing payload bytes are
// unused plus the "last fragment" flag, overflowing into the payload's
// final byte when more than 63 bytes are unused (see fragment.Save and
// decodeTrailer).
// Why: Fixed-size fragments let the row/index layer reference an
// out-of-line value by one small id instead of a variable-length inline
// blob, keeping sorted-file B-tree records themselves fixed-size.
package bytestore

import (
	"github.com/barrowdb/barrow/internal/storage/pager"
	"github.com/barrowdb/barrow/internal/storage/sortedfile"
)

// NFT is the number of fragment size classes offered by BytesPerFragment.
const NFT = 4

// BytesPerFragment derives the NFT candidate fragment payload sizes for a
// page of the given header-relative page size hp, biasing toward fewer,
// larger fragments for bigger values while keeping small values cheap.
func BytesPerFragment(hp int) [NFT]int {
	hp -= 8 // account for the sorted-file page header.
	pp := hp / 1000
	if pp == 0 {
		pp = 1
	}
	maxBpf := hp/pp - 12
	if maxBpf < 333 {
		maxBpf = 333
	}
	return [NFT]int{40, 127, 333, maxBpf}
}

// FragmentType picks the size class minimizing total fragment overhead
// (bpf+12 bytes per fragment) for a value of the given length.
func FragmentType(length int, bpf [NFT]int) int {
	best := int(^uint(0) >> 1)
	result := 0
	for ft, b := range bpf {
		nf := (length + b - 1) / b
		if nf == 0 {
			nf = 1
		}
		t := nf * (b + 12)
		if t <= best {
			best = t
			result = ft
		}
	}
	return result
}

// ByteStorage is a fragment chain store built on one SortedFile.
type ByteStorage struct {
	file   *sortedfile.SortedFile
	bpf    int
	nextID uint64
	idInit bool
}

// Open wraps an existing (or fresh) fragment-chain root, using bpf bytes
// of payload per fragment.
func Open(access *pager.Access, root uint64, bpf int) (*ByteStorage, uint64) {
	file := sortedfile.Open(access, root, RecordSize(bpf), loadFragment(bpf))
	return &ByteStorage{file: file, bpf: bpf}, file.Root()
}

// Root returns the fragment store's root logical page number, to be
// persisted by the owning database alongside its id_gen.
func (bs *ByteStorage) Root() uint64 { return bs.file.Root() }

// RecordSize returns the on-disk fragment record width for bpf payload
// bytes: 8-byte id + bpf payload + 1 trailer byte.
func RecordSize(bpf int) int { return 9 + bpf }

type fragment struct {
	id     uint64
	data   []byte
	length int
	last   bool
	bpf    int
}

func (f *fragment) Compare(data []byte) int {
	val := getU64(data, 0)
	switch {
	case f.id < val:
		return -1
	case f.id > val:
		return 1
	default:
		return 0
	}
}

func (f *fragment) Save(dst []byte) {
	setU64(dst, 0, f.id)
	copy(dst[8:8+f.length], f.data[:f.length])
	unused := f.bpf - f.length
	trailer := byte(unused%64)
	if f.last {
		trailer += 64
	}
	if unused >= 64 {
		trailer += 128
		dst[8+f.bpf-1] = byte(unused / 64)
	}
	dst[8+f.bpf] = trailer
}

func loadFragment(bpf int) sortedfile.Loader {
	return func(data []byte) sortedfile.Record {
		id := getU64(data, 0)
		length, last := decodeTrailer(data[8:], bpf)
		buf := make([]byte, length)
		copy(buf, data[8:8+length])
		return &fragment{id: id, data: buf, length: length, last: last, bpf: bpf}
	}
}

// decodeTrailer returns the payload length actually used and whether this
// is the chain's last fragment.
func decodeTrailer(data []byte, bpf int) (length int, last bool) {
	b := data[bpf]
	unused := int(b % 64)
	if b >= 128 {
		unused += int(data[bpf-1]) * 64
	}
	return bpf - unused, b&64 != 0
}

func getU64(b []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v
}

func setU64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

// nextChainID returns the id of the last stored fragment plus one,
// initialising lazily from the highest-id fragment on first use.
func (bs *ByteStorage) nextChainID() uint64 {
	if bs.idInit {
		return bs.nextID
	}
	results := bs.file.Dsc()
	var id uint64
	if len(results) > 0 {
		last := results[0].(*fragment)
		id = last.id + 1
	}
	bs.nextID = id
	bs.idInit = true
	return id
}

// Encode splits bytes into a fragment chain and returns the id of its
// first fragment.
func (bs *ByteStorage) Encode(data []byte) uint64 {
	result := bs.nextChainID()
	id := result
	done := 0
	n := len(data)
	for {
		length := n - done
		last := true
		if length > bs.bpf {
			length = bs.bpf
			last = false
		}
		f := &fragment{id: id, data: data[done : done+length], length: length, last: last, bpf: bs.bpf}
		bs.file.Insert(f)
		done += length
		id++
		if last {
			break
		}
	}
	bs.nextID = id
	return result
}

// Decode reconstructs a value starting at id, which may be prefixed with
// inline bytes already known to the caller (the row's own inline buffer).
func (bs *ByteStorage) Decode(id uint64, inline int) []byte {
	result := make([]byte, inline)
	cur := id
	for {
		rec := bs.file.Get(&fragment{id: cur, bpf: bs.bpf})
		if rec == nil {
			break
		}
		f := rec.(*fragment)
		result = append(result, f.data[:f.length]...)
		cur++
		if f.last {
			break
		}
	}
	return result
}

// Delcode removes every fragment in the chain starting at id.
func (bs *ByteStorage) Delcode(id uint64) {
	cur := id
	for {
		rec := bs.file.Get(&fragment{id: cur, bpf: bs.bpf})
		if rec == nil {
			break
		}
		f := rec.(*fragment)
		bs.file.Remove(&fragment{id: cur, bpf: bs.bpf})
		cur++
		if f.last {
			break
		}
	}
}

// Loader exposes the fragment decoder for callers that open their own
// SortedFile over this ByteStorage's record layout.
func Loader(bpf int) sortedfile.Loader { return loadFragment(bpf) }
