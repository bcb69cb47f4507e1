package filterstore

import (
	"sync"
	"sync/atomic"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
)

// FilterHandle wraps one Bloom filter with its lock and lifecycle flags.
// It exposes no public operations of its own; every access is mediated by
// Manager. Handle identity is shared across DirectoryVersions until the
// carrying version retires — see DirectoryVersion's copy-on-write map.
type FilterHandle struct {
	name   string
	filter *bloomfilter.Filter

	// customConfig is non-nil only if this handle was created with an
	// explicit per-filter configuration rather than the Manager default.
	// It is owned by this handle and has no separate lifetime.
	customConfig *bloomfilter.Config

	rwlock sync.RWMutex

	// isActive transitions true->false exactly once, under the Manager's
	// writer mutex. Once false, the handle is unreachable from the head
	// version's map; it lives on only as a tombstone until reclaimed.
	isActive atomic.Bool

	// isHot is set true by every check_keys/set_keys call and cleared by a
	// list_cold scan; it gates cold-filter enumeration.
	isHot atomic.Bool

	// shouldDelete is decided at drop/clear time: true means the Reaper
	// must destroy on-disk data, false means it must only release
	// in-memory resources. Set under the writer mutex before the carrying
	// version is detached, cleared by Manager.Close at shutdown, and read
	// by the Reaper when it finalizes the handle.
	shouldDelete atomic.Bool
}

func newFilterHandle(name string, f *bloomfilter.Filter, cfg *bloomfilter.Config) *FilterHandle {
	h := &FilterHandle{name: name, filter: f, customConfig: cfg}
	h.isActive.Store(true)
	return h
}

// markHot is called by CheckKeys and SetKeys. takeFilter marks only the
// DirectoryVersion hot, not the handle.
func (h *FilterHandle) markHot() { h.isHot.Store(true) }

// destroy releases the handle's underlying filter, either deleting its
// on-disk state or just closing it depending on shouldDelete. It must only
// be invoked by the Reaper, strictly after the carrying version has
// cooled.
func (h *FilterHandle) destroy() error {
	var err error
	if h.shouldDelete.Load() {
		err = h.filter.Delete()
	} else {
		err = h.filter.Close()
	}
	// The current Bloom filter engine has no native resources left to
	// release beyond what Delete/Close already did; Destroy stays as its
	// own step so a future engine with real teardown work has a hook.
	if derr := h.filter.Destroy(); derr != nil && err == nil {
		err = derr
	}
	h.customConfig = nil
	return err
}
