// Package compact provides CompactFile, which maps logical page numbers
// (LPNs) onto variable-sized physical regions of an underlying stg.Storage.
//
// What: A dense on-disk layout of fixed-size "starter" pages (one per LPN)
// each optionally chaining to fixed-size "extension" pages for data that
// doesn't fit inline, plus a persistent free-LPN chain and a per-save
// extension-page compaction pass that keeps the extension-page area packed.
// How: Every operation works in terms of the 44-byte header (magic, high
// water marks, reserved/ free-chain heads) defined in spec §6.1. Per-LPN
// frees and allocations are staged in transaction-local sets (lpFree,
// epFree) and only become visible on Save; Rollback simply discards them
// and reloads the counters from the header.
// Why: Keeping starter pages fixed-size and small means most logical pages
// never need an extension page at all, while chaining lets a handful of
// oversized pages (after a long run of inserts before a split) grow without
// forcing every starter slot to be large.
package compact

import (
	"github.com/rs/zerolog/log"

	"github.com/barrowdb/barrow/internal/storage/stg"
)

// On-disk constants, fixed by spec §6.1 — do not change without a format
// migration.
const (
	hsize         = 44
	freeChainTail = 0xf1e2d3c4b5a697 // 7-byte magic validating a free-LPN chain node.
	epOwnerSize   = 8                // bytes reserved at the head of each extension page for its owning LPN.
)

var magicBytes = [8]byte{'R', 'D', 'B', 'F', '1', '0', '0', '0'}

// CompactFile maps logical page numbers onto an underlying stg.Storage.
type CompactFile struct {
	stg Storage

	SpSize  uint16
	EpSize  uint16
	epResvd uint64 // extension-page-sized slots reserved for the starter array.
	epCount uint64 // high-water mark of physical extension pages.
	lpAlloc uint64 // next never-used LPN.
	lpFirst uint64 // head of persistent free-LPN chain; freeChainEnd if empty.

	lpFree map[uint64]struct{} // freed this transaction, not yet linked into the chain.
	epFree map[uint64]struct{} // extension pages freed this transaction.

	isNew bool
}

// Storage is the subset of stg.Storage CompactFile depends on (kept as an
// interface here so tests can substitute stg.Memory directly).
type Storage = stg.Storage

const freeChainEnd = ^uint64(0)

// New constructs a CompactFile over storage, initialising a fresh header if
// storage is empty, or validating and loading the existing header.
func New(storage Storage, spSize, epSize uint16) *CompactFile {
	cf := &CompactFile{
		stg:     storage,
		lpFree:  make(map[uint64]struct{}),
		epFree:  make(map[uint64]struct{}),
		SpSize:  spSize,
		EpSize:  epSize,
	}
	if storage.Size() < hsize {
		cf.isNew = true
		cf.epResvd = 1
		cf.epCount = 0
		cf.lpAlloc = 1
		cf.lpFirst = freeChainEnd
		cf.writeHeader()
		return cf
	}
	cf.loadHeader()
	return cf
}

// IsNew reports whether the storage was empty at construction.
func (cf *CompactFile) IsNew() bool { return cf.isNew }

func (cf *CompactFile) loadHeader() {
	hdr := make([]byte, hsize)
	cf.stg.Read(0, hdr)
	for i := 0; i < 8; i++ {
		if hdr[i] != magicBytes[i] {
			log.Error().Msg("compact: bad magic, not a barrow database file")
			panic("compact: bad magic")
		}
	}
	cf.epCount = stg.GetU64(hdr, 8)
	cf.lpAlloc = stg.GetU64(hdr, 16)
	cf.lpFirst = stg.GetU64(hdr, 24)
	cf.epResvd = stg.GetU64(hdr, 32)
	cf.SpSize = uint16(hdr[40]) | uint16(hdr[41])<<8
	cf.EpSize = uint16(hdr[42]) | uint16(hdr[43])<<8
}

func (cf *CompactFile) writeHeader() {
	hdr := make([]byte, hsize)
	copy(hdr[0:8], magicBytes[:])
	stg.SetU64(hdr, 8, cf.epCount)
	stg.SetU64(hdr, 16, cf.lpAlloc)
	stg.SetU64(hdr, 24, cf.lpFirst)
	stg.SetU64(hdr, 32, cf.epResvd)
	hdr[40] = byte(cf.SpSize)
	hdr[41] = byte(cf.SpSize >> 8)
	hdr[42] = byte(cf.EpSize)
	hdr[43] = byte(cf.EpSize >> 8)
	cf.stg.Write(0, hdr)
}

// extPages returns the number of extension pages needed to store size
// bytes of logical page data, given the starter/extension geometry.
func extPages(size int, spSize, epSize uint16) uint64 {
	tailCap := func(k uint64) int {
		c := int(spSize) - 2 - int(8*k)
		if c < 0 {
			return 0
		}
		return c
	}
	epPayload := int(epSize) - epOwnerSize
	var k uint64
	for tailCap(k)+int(k)*epPayload < size {
		k++
	}
	return k
}

// Compress reports whether freeing `saving` bytes from a size-byte logical
// page would free at least one extension page — used by the sorted-file
// layer to decide whether a page-level recompaction is worthwhile.
func Compress(spSize, epSize uint16, size, saving int) bool {
	if saving <= 0 || saving > size {
		return false
	}
	return extPages(size, spSize, epSize) > extPages(size-saving, spSize, epSize)
}

func (cf *CompactFile) starterOffset(lpn uint64) uint64 {
	return hsize + lpn*uint64(cf.SpSize)
}

func (cf *CompactFile) extOffset(epNum uint64) uint64 {
	return hsize + cf.epResvd*uint64(cf.EpSize) + epNum*uint64(cf.EpSize)
}

// AllocPage allocates a logical page number: from the transaction-local
// free set, then the persistent free chain, then a fresh high-water LPN.
func (cf *CompactFile) AllocPage() uint64 {
	for lpn := range cf.lpFree {
		delete(cf.lpFree, lpn)
		return lpn
	}
	if cf.lpFirst != freeChainEnd {
		lpn := cf.lpFirst
		data := make([]byte, cf.SpSize)
		cf.stg.Read(cf.starterOffset(lpn), data)
		next := stg.GetU64(data, 2)
		magic := get7(data, 2+8)
		if magic != freeChainTail {
			log.Error().Uint64("lpn", lpn).Msg("compact: corrupt free-LPN chain")
			panic("compact: corrupt free chain")
		}
		cf.lpFirst = next
		return lpn
	}
	lpn := cf.lpAlloc
	cf.lpAlloc++
	cf.ensureStarterCapacity(lpn)
	return lpn
}

// FreePage marks lpn free for this transaction; it is only linked into the
// persistent chain on Save.
func (cf *CompactFile) FreePage(lpn uint64) {
	cf.lpFree[lpn] = struct{}{}
}

// ensureStarterCapacity grows the reserved starter-array region so that lpn
// has a backing starter slot, relocating extension pages out of the way as
// needed (spec §3.2 "Starter region is grown by promoting an extension
// page's physical slot").
func (cf *CompactFile) ensureStarterCapacity(lpn uint64) {
	for cf.starterOffset(lpn)+uint64(cf.SpSize) > hsize+cf.epResvd*uint64(cf.EpSize) {
		cf.promoteExtensionSlot()
	}
}

// promoteExtensionSlot relocates the extension page currently occupying the
// first physical slot past the starter region onto a newly appended slot,
// then grows epResvd by one ep_size-worth of starter capacity.
func (cf *CompactFile) promoteExtensionSlot() {
	if cf.epCount == 0 {
		// No extension page physically exists yet at the slot the starter
		// region would grow into: just extend the reservation.
		cf.epResvd++
		return
	}
	srcIdx := uint64(0)
	src := cf.extOffset(srcIdx)
	buf := make([]byte, cf.EpSize)
	cf.stg.Read(src, buf)
	owner := stg.GetU64(buf, 0)

	cf.epResvd++
	newIdx := cf.epCount
	cf.epCount++
	dst := cf.extOffset(newIdx)
	cf.stg.Write(dst, buf)

	if owner != 0 {
		cf.rewriteExtPointer(owner, srcIdx, newIdx)
	}
}

// rewriteExtPointer finds occurrences of oldIdx in owner's starter
// ext-pointer array and rewrites them to newIdx.
func (cf *CompactFile) rewriteExtPointer(owner, oldIdx, newIdx uint64) {
	hdr := make([]byte, 2)
	off := cf.starterOffset(owner)
	cf.stg.Read(off, hdr)
	size := int(hdr[0]) | int(hdr[1])<<8
	k := extPages(size, cf.SpSize, cf.EpSize)
	ptrs := make([]byte, 8*k)
	cf.stg.Read(off+2, ptrs)
	for i := uint64(0); i < k; i++ {
		if stg.GetU64(ptrs, int(i*8)) == oldIdx {
			stg.SetU64(ptrs, int(i*8), newIdx)
		}
	}
	cf.stg.Write(off+2, ptrs)
}

// GetPage reads the full logical contents of lpn.
func (cf *CompactFile) GetPage(lpn uint64) []byte {
	hdr := make([]byte, 2)
	off := cf.starterOffset(lpn)
	cf.stg.Read(off, hdr)
	size := int(hdr[0]) | int(hdr[1])<<8
	if size == 0 {
		return nil
	}
	k := extPages(size, cf.SpSize, cf.EpSize)
	ptrs := make([]byte, 8*k)
	cf.stg.Read(off+2, ptrs)
	tailCap := int(cf.SpSize) - 2 - int(8*k)
	result := make([]byte, size)
	n := tailCap
	if n > size {
		n = size
	}
	if n > 0 {
		cf.stg.Read(off+2+8*k, result[:n])
	}
	got := n
	epPayload := int(cf.EpSize) - epOwnerSize
	for i := uint64(0); i < k && got < size; i++ {
		epn := stg.GetU64(ptrs, int(i*8))
		want := size - got
		if want > epPayload {
			want = epPayload
		}
		buf := make([]byte, want)
		cf.stg.Read(cf.extOffset(epn)+epOwnerSize, buf)
		copy(result[got:got+want], buf)
		got += want
	}
	return result
}

// PageSize returns the logical size in bytes of lpn without reading its
// full contents.
func (cf *CompactFile) PageSize(lpn uint64) int {
	hdr := make([]byte, 2)
	cf.stg.Read(cf.starterOffset(lpn), hdr)
	return int(hdr[0]) | int(hdr[1])<<8
}

// SetPage stores data as the full logical contents of lpn, growing or
// shrinking its extension-page chain as needed. Per spec §3.2, a shrink
// that frees at least one extension page does so immediately.
func (cf *CompactFile) SetPage(lpn uint64, data []byte) {
	cf.ensureStarterCapacity(lpn)
	off := cf.starterOffset(lpn)

	oldHdr := make([]byte, 2)
	cf.stg.Read(off, oldHdr)
	oldSize := int(oldHdr[0]) | int(oldHdr[1])<<8
	oldK := extPages(oldSize, cf.SpSize, cf.EpSize)
	oldPtrs := make([]byte, 8*oldK)
	if oldK > 0 {
		cf.stg.Read(off+2, oldPtrs)
	}

	newSize := len(data)
	newK := extPages(newSize, cf.SpSize, cf.EpSize)

	ptrs := make([]byte, 8*newK)
	copy(ptrs, oldPtrs[:min64(len(oldPtrs), len(ptrs))])
	for i := newK; i < oldK; i++ {
		cf.freeExtensionPage(stg.GetU64(oldPtrs, int(i*8)))
	}
	for i := oldK; i < newK; i++ {
		epn := cf.epAlloc()
		stg.SetU64(ptrs, int(i*8), epn)
		ownerHdr := make([]byte, epOwnerSize)
		stg.SetU64(ownerHdr, 0, lpn)
		cf.stg.Write(cf.extOffset(epn), ownerHdr)
	}

	tailCap := int(cf.SpSize) - 2 - int(8*newK)
	hdr := make([]byte, 2+8*newK)
	hdr[0] = byte(newSize)
	hdr[1] = byte(newSize >> 8)
	copy(hdr[2:], ptrs)
	n := tailCap
	if n > newSize {
		n = newSize
	}
	if n > 0 {
		hdr = append(hdr, data[:n]...)
	}
	cf.stg.Write(off, hdr)

	epPayload := int(cf.EpSize) - epOwnerSize
	written := n
	for i := uint64(0); i < newK && written < newSize; i++ {
		epn := stg.GetU64(ptrs, int(i*8))
		want := newSize - written
		if want > epPayload {
			want = epPayload
		}
		cf.stg.Write(cf.extOffset(epn)+epOwnerSize, data[written:written+want])
		written += want
	}
}

// get7/set7 handle the 7-byte free-chain magic field, which is one byte
// shorter than the u64 helpers in package stg.
func get7(data []byte, off int) uint64 {
	var buf [8]byte
	copy(buf[:7], data[off:off+7])
	return stg.GetU64(buf[:], 0)
}

func set7(data []byte, off int, val uint64) {
	var buf [8]byte
	stg.SetU64(buf[:], 0, val)
	copy(data[off:off+7], buf[:7])
}

func min64(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// epAlloc allocates a physical extension-page index: from the
// transaction-local free set, else by growing epCount.
func (cf *CompactFile) epAlloc() uint64 {
	for idx := range cf.epFree {
		delete(cf.epFree, idx)
		return idx
	}
	idx := cf.epCount
	cf.epCount++
	return idx
}

// freeExtensionPage marks a physical extension-page index free for this
// transaction; actual compaction happens at Save.
func (cf *CompactFile) freeExtensionPage(idx uint64) {
	cf.epFree[idx] = struct{}{}
}

// Save commits pending frees, compacts the extension-page area, and
// durably commits the underlying storage.
func (cf *CompactFile) Save() {
	for lpn := range cf.lpFree {
		cf.SetPage(lpn, nil)
		hdr := make([]byte, cf.SpSize)
		stg.SetU64(hdr, 2, cf.lpFirst)
		set7(hdr, 2+8, freeChainTail)
		cf.stg.Write(cf.starterOffset(lpn), hdr)
		cf.lpFirst = lpn
	}
	cf.lpFree = make(map[uint64]struct{})

	for len(cf.epFree) > 0 {
		var f uint64
		for idx := range cf.epFree {
			f = idx
			break
		}
		delete(cf.epFree, f)
		last := cf.epCount - 1
		if f != last {
			cf.relocateExtensionPage(last, f)
		}
		cf.epCount--
	}

	cf.writeHeader()
	cf.stg.Commit(cf.totalSize())
}

// totalSize is the physical size of the file: header, reserved starter
// region, then the in-use extension pages.
func (cf *CompactFile) totalSize() uint64 {
	return hsize + cf.epResvd*uint64(cf.EpSize) + cf.epCount*uint64(cf.EpSize)
}

// relocateExtensionPage moves the extension page at physical index src to
// physical index dst, fixing up the owning LPN's starter pointer array.
func (cf *CompactFile) relocateExtensionPage(src, dst uint64) {
	buf := make([]byte, cf.EpSize)
	cf.stg.Read(cf.extOffset(src), buf)
	owner := stg.GetU64(buf, 0)
	cf.stg.Write(cf.extOffset(dst), buf)
	cf.rewriteExtPointer(owner, src, dst)
}

// Rollback discards pending logical/extension-page allocations for this
// transaction and reloads counters from the last-saved header.
func (cf *CompactFile) Rollback() {
	cf.lpFree = make(map[uint64]struct{})
	cf.epFree = make(map[uint64]struct{})
	cf.loadHeader()
}
