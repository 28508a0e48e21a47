// Package atomfile provides an atomic-commit Storage built from two
// underlying Storages.
//
// What: AtomicFile wraps a "main" Storage and an "overlay" Storage (plus a
// background worker goroutine) to guarantee that a multi-region Commit is
// either fully applied to main or not applied at all, even if the process
// dies mid-commit.
// How: Writes accumulate in an in-memory interval map (wMap) keyed by the
// last byte address they touch. Commit hands the staged map to a worker,
// which serialises it into the overlay storage in a self-describing form,
// flips a "valid" flag, replays the entries onto main, then clears the flag
// and truncates the overlay. On open, a valid overlay is replayed before
// normal operation resumes.
// Why: Decoupling commit from the client thread (via the worker) lets the
// caller keep issuing logical-page writes for the next transaction while the
// previous one durably lands, without ever exposing a half-written main
// file to a reader that reopens the storage after a crash.
package atomfile

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/barrowdb/barrow/internal/storage/stg"
)

// maxQueuedEntries bounds how many staged entries may be in flight to the
// worker before Commit blocks, per spec §4.B / §5.
const maxQueuedEntries = 3000

// overlayMagic marks a valid (not-yet-replayed) overlay. Any other value at
// offset 0 means the overlay holds no pending commit.
const overlayMagic = 0xA7011DF11E0000A7

// wEntry is one staged write: bytes [offIn:offIn+length) of data belong at
// byte offset start in the logical file. Keeping offIn distinct from a
// freshly-sliced copy lets a single write_data call stage many entries that
// share one backing array without re-allocating.
type wEntry struct {
	start  uint64
	length uint64
	data   []byte
	offIn  uint64
}

func (e wEntry) end() uint64 { return e.start + e.length - 1 }
func (e wEntry) bytes() []byte {
	return e.data[e.offIn : e.offIn+e.length]
}

// commitJob is one unit of work handed to the background worker.
type commitJob struct {
	entries map[uint64]wEntry
	size    uint64
	done    chan struct{}
}

// AtomicFile implements stg.Storage over a durable "main" store, using an
// "overlay" store plus a commit worker to make multi-region writes atomic.
type AtomicFile struct {
	main    stg.Storage
	overlay stg.Storage

	mu        sync.Mutex
	staged    map[uint64]wEntry // writes not yet handed to the worker.
	inFlight  map[uint64]wEntry // writes handed to the worker, not yet replayed onto main.
	queued    int
	queueCond *sync.Cond

	jobs chan commitJob
	wg   sync.WaitGroup
}

// New wraps main/overlay into an AtomicFile, replaying a valid overlay left
// over from a crash before returning.
func New(main, overlay stg.Storage) *AtomicFile {
	af := &AtomicFile{
		main:     main,
		overlay:  overlay,
		staged:   make(map[uint64]wEntry),
		inFlight: make(map[uint64]wEntry),
		jobs:     make(chan commitJob, 64),
	}
	af.queueCond = sync.NewCond(&af.mu)
	af.recover()
	af.wg.Add(1)
	go af.worker()
	return af
}

// recover replays a valid overlay onto main. Called once at construction.
func (af *AtomicFile) recover() {
	if af.overlay.Size() < 16 {
		return
	}
	hdr := make([]byte, 16)
	af.overlay.Read(0, hdr)
	if stg.GetU64(hdr, 0) != overlayMagic {
		return
	}
	log.Warn().Msg("atomfile: replaying valid overlay left by a prior crash")
	count := stg.GetU64(hdr, 8)
	off := uint64(16)
	entries := make(map[uint64]wEntry, count)
	for i := uint64(0); i < count; i++ {
		eh := make([]byte, 16)
		af.overlay.Read(off, eh)
		end := stg.GetU64(eh, 0)
		length := stg.GetU64(eh, 8)
		off += 16
		data := make([]byte, length)
		af.overlay.Read(off, data)
		off += length
		start := end - length + 1
		entries[end] = wEntry{start: start, length: length, data: data}
	}
	af.replay(entries)
	af.clearOverlay()
}

// Size returns the logical size: the larger of main's committed size and
// the highest byte touched by a pending write.
func (af *AtomicFile) Size() uint64 {
	af.mu.Lock()
	defer af.mu.Unlock()
	size := af.main.Size()
	for _, e := range af.staged {
		if e.start+e.length > size {
			size = e.start + e.length
		}
	}
	for _, e := range af.inFlight {
		if e.start+e.length > size {
			size = e.start + e.length
		}
	}
	return size
}

// Write stages data at off; it becomes visible to Read immediately but is
// not durable until a subsequent Commit drains the worker.
func (af *AtomicFile) Write(off uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	e := wEntry{start: off, length: uint64(len(cp)), data: cp}
	af.mu.Lock()
	af.staged[e.end()] = e
	af.mu.Unlock()
}

// Read first consults staged writes, then in-flight (not-yet-replayed)
// writes, then falls through to main.
func (af *AtomicFile) Read(off uint64, buf []byte) {
	n := uint64(len(buf))
	if n == 0 {
		return
	}
	end := off + n - 1
	af.mu.Lock()
	af.main.Read(off, buf) // fill from the bottom first.
	overlayRange(af.inFlight, off, end, buf)
	overlayRange(af.staged, off, end, buf)
	af.mu.Unlock()
}

// overlayRange copies any bytes of entries in m overlapping [off,end] into
// buf (buf covers [off,end]).
func overlayRange(m map[uint64]wEntry, off, end uint64, buf []byte) {
	for _, e := range m {
		if e.end() < off || e.start > end {
			continue
		}
		lo := e.start
		if lo < off {
			lo = off
		}
		hi := e.end()
		if hi > end {
			hi = end
		}
		src := e.bytes()[lo-e.start : hi-e.start+1]
		copy(buf[lo-off:hi-off+1], src)
	}
}

// Commit hands the staged write set to the background worker and waits for
// the worker to accept it (not for it to finish durably — see WaitComplete).
func (af *AtomicFile) Commit(newSize uint64) {
	af.mu.Lock()
	for af.queued > maxQueuedEntries {
		af.queueCond.Wait()
	}
	staged := af.staged
	af.staged = make(map[uint64]wEntry)
	af.queued += len(staged)
	for k, v := range staged {
		af.inFlight[k] = v
	}
	af.mu.Unlock()

	job := commitJob{entries: staged, size: newSize, done: make(chan struct{})}
	af.jobs <- job
}

// WaitComplete blocks until every commit handed to the worker so far has
// been durably replayed onto main.
func (af *AtomicFile) WaitComplete() {
	done := make(chan struct{})
	af.jobs <- commitJob{done: done, entries: nil}
	<-done
}

// Close stops the worker goroutine. No further Commit/Write calls may be
// made afterwards.
func (af *AtomicFile) Close() {
	close(af.jobs)
	af.wg.Wait()
}

func (af *AtomicFile) worker() {
	defer af.wg.Done()
	for job := range af.jobs {
		if job.entries == nil {
			close(job.done)
			continue
		}
		af.writeOverlay(job.entries)
		af.replay(job.entries)
		af.clearOverlay()
		af.main.Commit(job.size)

		af.mu.Lock()
		for k := range job.entries {
			delete(af.inFlight, k)
		}
		af.queued -= len(job.entries)
		af.queueCond.Broadcast()
		af.mu.Unlock()

		close(job.done)
	}
}

// writeOverlay serialises entries into the overlay in the self-describing
// form of spec §6.1, then flips the valid flag, in that order — the flag
// flip is the single atomic commit point for crash recovery.
func (af *AtomicFile) writeOverlay(entries map[uint64]wEntry) {
	off := uint64(16)
	count := uint64(0)
	for _, e := range entries {
		eh := make([]byte, 16)
		stg.SetU64(eh, 0, e.end())
		stg.SetU64(eh, 8, e.length)
		af.overlay.Write(off, eh)
		off += 16
		af.overlay.Write(off, e.bytes())
		off += e.length
		count++
	}
	af.overlay.Commit(off)

	hdr := make([]byte, 16)
	stg.SetU64(hdr, 0, overlayMagic)
	stg.SetU64(hdr, 8, count)
	af.overlay.Write(0, hdr)
	af.overlay.Commit(off)
}

// replay writes every entry directly onto main.
func (af *AtomicFile) replay(entries map[uint64]wEntry) {
	for _, e := range entries {
		af.main.Write(e.start, e.bytes())
	}
}

// clearOverlay drops the valid flag and truncates the overlay to empty,
// marking the commit fully durable on main.
func (af *AtomicFile) clearOverlay() {
	hdr := make([]byte, 16)
	af.overlay.Write(0, hdr)
	af.overlay.Commit(0)
}

var _ stg.Storage = (*AtomicFile)(nil)

// wrapFatal wraps unexpected storage faults surfaced through AtomicFile; per
// spec §4.B these are expected to be fatal, but wrapping lets a caller log
// a stack trace before the process exits.
func wrapFatal(op string, err error) error {
	return errors.Wrapf(err, "atomfile: %s", op)
}
