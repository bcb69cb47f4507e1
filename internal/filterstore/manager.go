// Package filterstore is the in-memory control plane of the Bloom-filter
// network service: a named collection of Bloom filters under MVCC, safe
// lifecycle management of filters that may be in flight when the directory
// mutates, and a background Reaper that retires old directory versions and
// finalizes deleted filters only after quiescence.
package filterstore

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
)

// Config configures a Manager.
type Config struct {
	// DataDir is scanned at startup and used as the base for per-filter
	// persistence.
	DataDir string
	// Default is the configuration used by create when the caller does
	// not supply one.
	Default bloomfilter.Config
}

// Manager is the public facade over the filter directory. It serializes
// mutating operations via writerMu, publishes new DirectoryVersions, and
// dispatches read operations against the current head without ever
// blocking on the writer mutex.
type Manager struct {
	head    atomic.Pointer[DirectoryVersion]
	writerMu sync.Mutex
	nextVsn  atomic.Int64

	dataDir string
	def     bloomfilter.Config
}

// NewManager constructs a Manager, running the startup directory scan to
// materialize the initial DirectoryVersion from whatever filters already
// exist under cfg.DataDir.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{dataDir: cfg.DataDir, def: cfg.Default}
	initial, highestVsn, err := loadInitialVersion(cfg.DataDir, cfg.Default)
	if err != nil {
		return nil, err
	}
	m.nextVsn.Store(highestVsn)
	m.head.Store(initial)
	return m, nil
}

// Head returns the current head DirectoryVersion. Safe to call without any
// lock: an atomic load is all a reader ever needs to see a consistent
// snapshot of the directory.
func (m *Manager) Head() *DirectoryVersion { return m.head.Load() }

func (m *Manager) publish(v *DirectoryVersion) { m.head.Store(v) }

// resolve implements take_filter against the current head.
func (m *Manager) resolve(name string) *FilterHandle {
	return takeFilter(m.Head(), name)
}

// Create allocates a new named Bloom filter and publishes it into the head
// directory. cfg overrides the Manager's default sizing when non-nil.
func (m *Manager) Create(name string, cfg *bloomfilter.Config) Status {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()

	head := m.Head()
	if _, exists := head.entries[name]; exists {
		return StatusAlreadyExists
	}

	effective := m.def
	var owned *bloomfilter.Config
	if cfg != nil {
		effective = *cfg
		owned = cfg
	}

	f, err := bloomfilter.Open(m.dataDir, name, effective, true)
	if err != nil {
		return StatusInternal
	}

	next := newVersion(head, m.nextVsn.Add(1))
	next.entries[name] = newFilterHandle(name, f, owned)
	m.publish(next)
	return StatusOK
}

// Drop removes name from the head directory and schedules the underlying
// filter's on-disk data for destruction once the Reaper retires this
// version.
func (m *Manager) Drop(name string) Status {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()
	return m.dropLocked(name, true)
}

// Clear removes name from the head directory like Drop, but only while the
// filter is proxied (unmapped from memory), and tells the Reaper to close
// rather than destroy its on-disk data.
func (m *Manager) Clear(name string) Status {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()

	head := m.Head()
	h, ok := head.entries[name]
	if !ok || !h.isActive.Load() {
		return StatusNotFound
	}
	if !h.filter.IsProxied() {
		return StatusNotProxied
	}
	return m.dropLocked(name, false)
}

// dropLocked performs the shared remove-from-head machinery for Drop and
// Clear. shouldDelete selects the Reaper's eventual destroy-vs-close
// behavior. Caller must hold writerMu.
func (m *Manager) dropLocked(name string, shouldDelete bool) Status {
	head := m.Head()
	h, ok := head.entries[name]
	if !ok || !h.isActive.Load() {
		return StatusNotFound
	}

	// Flip isActive before publish: once false, the handle is unreachable
	// from the new head's map even though it may still be referenced by a
	// caller that resolved it a moment earlier.
	h.isActive.Store(false)
	h.shouldDelete.Store(shouldDelete)

	next := newVersion(head, m.nextVsn.Add(1))
	delete(next.entries, name)
	// The tombstone belongs to the predecessor: it is what the Reaper
	// finds when it retires `head` (now `next.prev`).
	next.prev.tombstone = h
	m.publish(next)
	return StatusOK
}

// Unmap releases the filter's in-memory bit array, leaving its on-disk
// state intact. This does not change the directory: the handle stays in
// the head map, only the filter's own proxied flag flips.
func (m *Manager) Unmap(name string) Status {
	h := m.resolve(name)
	if h == nil {
		return StatusNotFound
	}
	if h.filter.IsProxied() {
		return StatusOK
	}
	h.rwlock.Lock()
	defer h.rwlock.Unlock()
	if err := h.filter.Close(); err != nil {
		return StatusInternal
	}
	return StatusOK
}

// Flush persists name's current bit array to disk, taken under the
// handle's reader lock only since the underlying filter serializes its own
// flush internally.
func (m *Manager) Flush(name string) Status {
	h := m.resolve(name)
	if h == nil {
		return StatusNotFound
	}
	h.rwlock.RLock()
	defer h.rwlock.RUnlock()
	if err := h.filter.Flush(); err != nil {
		return StatusInternal
	}
	return StatusOK
}

// CheckKeys tests each key against name's filter, reporting per-key
// possible membership. A successful call marks the handle hot regardless
// of the individual results.
func (m *Manager) CheckKeys(name string, keys [][]byte) ([]bool, Status) {
	h := m.resolve(name)
	if h == nil {
		return nil, StatusNotFound
	}
	h.rwlock.RLock()
	defer h.rwlock.RUnlock()

	results := make([]bool, 0, len(keys))
	for _, k := range keys {
		present, err := h.filter.Contains(k)
		if err != nil {
			h.markHot()
			return results, StatusInternal
		}
		results = append(results, present)
	}
	h.markHot()
	return results, StatusOK
}

// SetKeys adds each key to name's filter, reporting per-key whether it was
// newly added. A successful call marks the handle hot.
func (m *Manager) SetKeys(name string, keys [][]byte) ([]bool, Status) {
	h := m.resolve(name)
	if h == nil {
		return nil, StatusNotFound
	}
	h.rwlock.Lock()
	defer h.rwlock.Unlock()

	results := make([]bool, 0, len(keys))
	for _, k := range keys {
		added, err := h.filter.Add(k)
		if err != nil {
			h.markHot()
			return results, StatusInternal
		}
		results = append(results, added)
	}
	h.markHot()
	return results, StatusOK
}

// ListAll returns a snapshot of every active filter name in the head
// version.
func (m *Manager) ListAll() []string {
	head := m.Head()
	head.isHot.Store(true)
	names := make([]string, 0, len(head.entries))
	for name, h := range head.entries {
		if h.isActive.Load() {
			names = append(names, name)
		}
	}
	return names
}

// ListCold returns the names of active, non-proxied filters that have not
// been touched by CheckKeys/SetKeys since the last ListCold call. Calling
// it clears the hot flag on every entry it inspects, so repeated calls
// describe activity since the previous scan rather than since creation.
func (m *Manager) ListCold() []string {
	head := m.Head()
	head.isHot.Store(true)
	cold := make([]string, 0)
	for name, h := range head.entries {
		if !h.isActive.Load() {
			continue
		}
		if h.isHot.Load() {
			h.isHot.Store(false)
			continue
		}
		if h.filter.IsProxied() {
			continue
		}
		cold = append(cold, name)
	}
	return cold
}

// WithFilter resolves name and invokes fn with the raw filter reference,
// without taking the handle lock. fn must treat the filter as read-only
// metadata (capacity, count, proxied state), not as a target for Add or
// Contains.
func (m *Manager) WithFilter(name string, fn func(*bloomfilter.Filter)) Status {
	h := m.resolve(name)
	if h == nil {
		return StatusNotFound
	}
	fn(h.filter)
	return StatusOK
}

// Close flushes every active filter to disk and neutralizes any pending
// tombstone so that shutdown never deletes on-disk files, even if a drop
// or clear had already decided to destroy them before the Reaper got to
// it. It does not stop a running Reaper; callers that started one should
// stop it first.
func (m *Manager) Close() {
	head := m.Head()
	for name, h := range head.entries {
		if !h.isActive.Load() {
			continue
		}
		h.rwlock.Lock()
		if err := h.filter.Flush(); err != nil {
			log.Printf("filterstore: flush %q on close: %v", name, err)
		}
		h.rwlock.Unlock()
	}
	// Walk every version still in the chain (the Reaper may not have
	// caught up yet) and neutralize should_delete on any pending
	// tombstone, so a shutdown never destroys on-disk files regardless
	// of what drop/clear had previously decided.
	for v := head; v != nil; v = v.prev {
		if v.tombstone != nil {
			v.tombstone.shouldDelete.Store(false)
		}
	}
}
