// Package pager implements the snapshot-isolated page cache ("Stash") that
// sits above CompactFile: SharedPagedData and AccessPagedData.
//
// What: Caches logical pages by LPN, keeping a per-page history of
// superseded versions keyed by a monotonic "time" counter so that readers
// opened before a writer's save keep seeing their own consistent snapshot
// even while the writer keeps mutating pages.
// How: A single Stash (behind one Mutex) owns a map of per-page
// PageInfo, each behind its own mutex so reader/writer contention is
// per-page rather than global. begin_read/end_read track how many readers
// are pinned at each historical time; end_write bumps time and trims any
// history strictly older than the oldest pinned reader.
// Why: This is the only place in the stack where concurrent access
// matters — the evaluator itself is single-threaded per Database, but a
// long-lived read-only snapshot (e.g. a background export) must not block
// or be disrupted by the one writer's saves.
package pager

import (
	"sync"

	"github.com/barrowdb/barrow/internal/storage/compact"
	"github.com/barrowdb/barrow/internal/storage/stg"
)

// pageInfo is the cached state of one logical page.
type pageInfo struct {
	mu      sync.Mutex
	current []byte
	history map[uint64][]byte // time -> data superseded at that time.
}

func newPageInfo() *pageInfo {
	return &pageInfo{history: make(map[uint64][]byte)}
}

// get returns the data visible to a reader at access.time, loading from the
// compact file on first touch.
func (pi *pageInfo) get(lpn uint64, access *Access) []byte {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if !access.Writer {
		var best []byte
		bestT := ^uint64(0)
		for t, d := range pi.history {
			if t >= access.Time && t < bestT {
				bestT = t
				best = d
			}
		}
		if best != nil {
			access.shared.observe(true)
			return best
		}
	}
	if pi.current != nil {
		access.shared.observe(true)
		return pi.current
	}
	access.shared.observe(false)
	cf := access.shared.file
	n := cf.PageSize(lpn)
	data := cf.GetPage(lpn)
	if data == nil {
		data = make([]byte, n)
	}
	pi.current = data
	return data
}

// set installs new data as current, archiving the prior current under time.
func (pi *pageInfo) set(time uint64, data []byte) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.current != nil {
		pi.history[time] = pi.current
	}
	pi.current = data
}

// trim drops history entries strictly older than to.
func (pi *pageInfo) trim(to uint64) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	for t := range pi.history {
		if t < to {
			delete(pi.history, t)
		}
	}
}

// Stash is the central cache of pages shared between all readers and the
// single writer of one SharedPagedData.
type stash struct {
	mu      sync.Mutex
	time    uint64
	pages   map[uint64]*pageInfo
	readers map[uint64]int         // count of readers pinned at a given time.
	updates map[uint64]map[uint64]struct{} // time -> set of LPNs updated at that time.
}

func newStash() *stash {
	return &stash{
		pages:   make(map[uint64]*pageInfo),
		readers: make(map[uint64]int),
		updates: make(map[uint64]map[uint64]struct{}),
	}
}

func (s *stash) get(lpn uint64) *pageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.pages[lpn]
	if !ok {
		pi = newPageInfo()
		s.pages[lpn] = pi
	}
	return pi
}

func (s *stash) set(lpn uint64, data []byte) {
	s.mu.Lock()
	time := s.time
	u, ok := s.updates[time]
	if !ok {
		u = make(map[uint64]struct{})
		s.updates[time] = u
	}
	_, already := u[lpn]
	if !already {
		u[lpn] = struct{}{}
	}
	pi, ok := s.pages[lpn]
	if !ok {
		pi = newPageInfo()
		s.pages[lpn] = pi
	}
	s.mu.Unlock()
	if already {
		pi.mu.Lock()
		pi.current = data
		pi.mu.Unlock()
		return
	}
	pi.set(time, data)
}

func (s *stash) beginRead() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	time := s.time
	s.readers[time]++
	return time
}

func (s *stash) endRead(time uint64) {
	s.mu.Lock()
	s.readers[time]--
	if s.readers[time] == 0 {
		delete(s.readers, time)
	}
	s.mu.Unlock()
	s.trim()
}

func (s *stash) endWrite() {
	s.mu.Lock()
	s.time++
	s.mu.Unlock()
	s.trim()
}

func (s *stash) trim() {
	s.mu.Lock()
	rt := s.time
	for t := range s.readers {
		if t < rt {
			rt = t
		}
	}
	var toTrim []uint64
	for t, set := range s.updates {
		if t >= rt {
			continue
		}
		for lpn := range set {
			toTrim = append(toTrim, lpn)
		}
		delete(s.updates, t)
	}
	pages := make([]*pageInfo, 0, len(toTrim))
	for _, lpn := range toTrim {
		if pi, ok := s.pages[lpn]; ok {
			pages = append(pages, pi)
		}
	}
	s.mu.Unlock()
	for _, pi := range pages {
		pi.trim(rt)
	}
}

// CacheObserver receives page-cache hit/miss notifications. Kept as a
// narrow interface (rather than importing internal/metrics directly) so
// pager stays usable without the Prometheus dependency in tests.
type CacheObserver interface {
	Hit()
	Miss()
}

// Shared allows logical database pages to be shared between concurrent
// readers and the single writer.
type Shared struct {
	stash  *stash
	fileMu sync.RWMutex
	file   *compact.CompactFile
	SpSize uint16
	EpSize uint16
	obs    CacheObserver
}

// New builds a Shared page store over storage, using the spec's default
// geometry (sp_size=400, ep_size=1024) unless the file already exists, in
// which case the geometry is read from its header.
func New(storage stg.Storage) *Shared {
	cf := compact.New(storage, 400, 1024)
	return &Shared{
		stash:  newStash(),
		file:   cf,
		SpSize: cf.SpSize,
		EpSize: cf.EpSize,
	}
}

// SetObserver wires obs to receive this Shared's page-cache hit/miss
// events. Pass nil to disable (the default).
func (s *Shared) SetObserver(obs CacheObserver) { s.obs = obs }

func (s *Shared) observe(hit bool) {
	if s.obs == nil {
		return
	}
	if hit {
		s.obs.Hit()
	} else {
		s.obs.Miss()
	}
}

// OpenRead returns a read-only virtual snapshot of the database's logical
// pages, pinned at the current time.
func (s *Shared) OpenRead() *Access {
	return &Access{Writer: false, Time: s.stash.beginRead(), shared: s}
}

// OpenWrite returns write access to the database's logical pages. Only one
// writer may be active at a time; the caller is responsible for that
// discipline (mirrors spec §5's single-writer model).
func (s *Shared) OpenWrite() *Access {
	return &Access{Writer: true, shared: s}
}

// Access is a reader or writer handle onto a Shared page store.
type Access struct {
	Writer bool
	Time   uint64
	shared *Shared
	closed bool
}

// GetPage returns the data for lpn visible at this Access's time. A writer
// gets its own copy, so changing it in place leaves readers' snapshots
// untouched.
func (a *Access) GetPage(lpn uint64) []byte {
	pi := a.shared.stash.get(lpn)
	data := pi.get(lpn, a)
	if a.Writer {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	return data
}

// SetPage installs data as the current content of lpn (writer only).
func (a *Access) SetPage(lpn uint64, data []byte) {
	if !a.Writer {
		panic("pager: SetPage called on a read-only Access")
	}
	a.shared.stash.set(lpn, data)
	a.shared.fileMu.Lock()
	a.shared.file.SetPage(lpn, data)
	a.shared.fileMu.Unlock()
}

// IsNew reports whether the underlying storage was empty at open.
func (a *Access) IsNew() bool {
	return a.Writer && a.shared.file.IsNew()
}

// Compress reports whether compacting a page of the given size to save the
// given number of bytes would free a physical extension page.
func (a *Access) Compress(size, saving int) bool {
	return compact.Compress(a.shared.SpSize, a.shared.EpSize, size, saving)
}

// AllocPage allocates a fresh logical page number (writer only).
func (a *Access) AllocPage() uint64 {
	a.shared.fileMu.Lock()
	defer a.shared.fileMu.Unlock()
	return a.shared.file.AllocPage()
}

// FreePage frees a logical page number (writer only).
func (a *Access) FreePage(lpn uint64) {
	a.shared.fileMu.Lock()
	defer a.shared.fileMu.Unlock()
	a.shared.file.FreePage(lpn)
}

// SaveOp selects whether Save durably commits or rolls back pending
// logical-page allocations.
type SaveOp int

const (
	Save SaveOp = iota
	Rollback
)

// Save commits (or rolls back) the writer's changes to the underlying
// compact file, advancing the Stash's time on a successful commit.
func (a *Access) Save(op SaveOp) {
	a.shared.fileMu.Lock()
	switch op {
	case Save:
		a.shared.file.Save()
	case Rollback:
		a.shared.file.Rollback()
	}
	a.shared.fileMu.Unlock()
	if op == Save {
		a.shared.stash.endWrite()
	}
}

// Close releases a reader's pin on its snapshot time. Writers need not
// call Close.
func (a *Access) Close() {
	if a.Writer || a.closed {
		return
	}
	a.closed = true
	a.shared.stash.endRead(a.Time)
}
