// Package stg provides the bottom-most byte-addressable storage abstraction.
//
// What: An opaque, mutable, random-access region of bytes with size, read,
// write and commit operations, plus little-endian u64 helpers used by every
// layer above it.
// How: Two implementations are provided — an in-memory Storage backed by a
// plain []byte for tests and ephemeral databases, and a file-backed Storage
// that seeks/reads/writes an *os.File. File's Size stays at its value from
// open or the last Commit until the next Commit, while Memory's Size grows
// as soon as a Write extends its buffer; both meet the contract that Size
// is only meaningful at construction and right after a Commit.
// Why: Keeping this interface minimal lets every layer above (AtomicFile,
// CompactFile) remain agnostic of whether the bytes live on disk or in
// memory, which is what makes the storage stack testable without a
// filesystem.
package stg

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Storage is a byte-addressable mutable region. Implementations panic on
// I/O failure: per spec, storage failures are fatal to the process.
type Storage interface {
	// Size returns the current size in bytes. Only guaranteed accurate at
	// construction and immediately after Commit.
	Size() uint64

	// Read fills buf with bytes starting at off. Reading past the end is
	// treated as zero-fill, matching a sparse/never-written region.
	Read(off uint64, buf []byte)

	// Write stores bytes at off.
	Write(off uint64, data []byte)

	// Commit finalises the storage at the given new size.
	Commit(newSize uint64)
}

// GetU64 reads a little-endian u64 at the given offset of data.
func GetU64(data []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(data[off : off+8])
}

// SetU64 writes a little-endian u64 at the given offset of data.
func SetU64(data []byte, off int, val uint64) {
	binary.LittleEndian.PutUint64(data[off:off+8], val)
}

// Memory is an in-memory Storage, used for tests and transient databases.
type Memory struct {
	buf []byte
}

// NewMemory constructs an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Size() uint64 { return uint64(len(m.buf)) }

func (m *Memory) Read(off uint64, buf []byte) {
	n := copy(buf, sliceFrom(m.buf, off, len(buf)))
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}

func (m *Memory) Write(off uint64, data []byte) {
	end := off + uint64(len(data))
	if end > uint64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], data)
}

func (m *Memory) Commit(newSize uint64) {
	if newSize <= uint64(len(m.buf)) {
		m.buf = m.buf[:newSize]
		return
	}
	grown := make([]byte, newSize)
	copy(grown, m.buf)
	m.buf = grown
}

func sliceFrom(buf []byte, off uint64, n int) []byte {
	if off >= uint64(len(buf)) {
		return nil
	}
	end := off + uint64(n)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	return buf[off:end]
}

// File is a Storage backed by an *os.File, used for durable on-disk
// databases.
type File struct {
	f    *os.File
	size uint64
}

// NewFile opens (creating if needed) path as a file-backed Storage.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, "stg: open %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stg: stat %s", path)
	}
	return &File{f: f, size: uint64(fi.Size())}, nil
}

func (fs *File) Size() uint64 { return fs.size }

func (fs *File) Read(off uint64, buf []byte) {
	n, err := fs.f.ReadAt(buf, int64(off))
	if err != nil && err != io.EOF {
		log.Error().Err(err).Msg("stg: fatal read failure")
		panic(errors.Wrap(err, "stg: read"))
	}
	// Short/absent reads (holes past EOF) are zero-filled; anything
	// else is a fatal storage fault per spec §4.A.
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}

func (fs *File) Write(off uint64, data []byte) {
	if _, err := fs.f.WriteAt(data, int64(off)); err != nil {
		log.Error().Err(err).Msg("stg: fatal write failure")
		panic(errors.Wrap(err, "stg: write"))
	}
}

func (fs *File) Commit(newSize uint64) {
	if err := fs.f.Sync(); err != nil {
		panic(errors.Wrap(err, "stg: sync"))
	}
	if newSize != fs.size {
		if err := fs.f.Truncate(int64(newSize)); err != nil {
			panic(errors.Wrap(err, "stg: truncate"))
		}
	}
	fs.size = newSize
}

// Close releases the underlying file handle.
func (fs *File) Close() error {
	return fs.f.Close()
}
