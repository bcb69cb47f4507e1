package filterstore

import (
	"log"
	"sync/atomic"
	"time"
)

// DefaultVersionCooldown is the minimum time a retired directory version
// must sit untouched before the Reaper finalizes its tombstone. It is
// exposed as a Reaper constructor argument mainly so tests can shrink it;
// operators should otherwise leave it at this value.
const DefaultVersionCooldown = 15 * time.Second

// ReapEvent describes one Reaper reclamation, for the diagnostics ring
// buffer (internal/diag). It carries no correctness-relevant state.
type ReapEvent struct {
	Vsn             int64
	TombstoneName   string
	TombstoneExists bool
	Destroyed       bool // true: on-disk data removed; false: close only
}

// Reaper is the single long-lived background worker that retires cold
// predecessor directory versions and finalizes tombstoned filters only
// after quiescence.
//
// Safety limitation (documented to operators): the cooldown is a
// heuristic barrier, not a reference count. An in-progress operation
// holding a FilterHandle pointer from a reaped version, whose execution
// exceeds two cooldown cycles without any other sampling of that version,
// can in principle keep operating against a version already superseded in
// head. In Go this never manifests as memory unsafety — the handle and
// its filter remain valid Go values for as long as any goroutine
// references them — only as that documented staleness. Tombstone
// destruction is still gated on the cooldown regardless, since that is
// what bounds how long a dropped filter's on-disk files linger before
// reclamation.
type Reaper struct {
	mgr      *Manager
	interval time.Duration
	cooldown time.Duration

	shouldRun   atomic.Bool
	lastSeenVsn int64

	stopCh chan struct{}
	doneCh chan struct{}

	onEvent func(ReapEvent)
}

// NewReaper constructs a Reaper bound to mgr. onEvent may be nil; when set
// it is invoked once per finalized tombstone (including "no tombstone")
// after each version is fully reaped.
func NewReaper(mgr *Manager, interval, cooldown time.Duration, onEvent func(ReapEvent)) *Reaper {
	if interval <= 0 {
		interval = time.Second
	}
	if cooldown <= 0 {
		cooldown = DefaultVersionCooldown
	}
	return &Reaper{
		mgr:      mgr,
		interval: interval,
		cooldown: cooldown,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		onEvent:  onEvent,
	}
}

// Start launches the Reaper's loop in its own goroutine.
func (r *Reaper) Start() {
	r.shouldRun.Store(true)
	go r.run()
}

// Stop clears shouldRun and blocks until the loop (and any in-progress
// cooldown sleep) has exited.
func (r *Reaper) Stop() {
	r.shouldRun.Store(false)
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for r.shouldRun.Load() {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cycle()
		}
	}
}

func (r *Reaper) cycle() {
	head := r.mgr.Head()
	if head.vsn == r.lastSeenVsn {
		return
	}
	r.lastSeenVsn = head.vsn

	// Detach the predecessor chain. This is the transfer point: any
	// future publishes will not re-link this chain, so it is now solely
	// the Reaper's responsibility.
	old := head.prev
	head.prev = nil
	if old == nil {
		return
	}
	r.reap(old)
}

// reap descends to the oldest version first, then cools down and
// finalizes each one on the way back up.
func (r *Reaper) reap(v *DirectoryVersion) {
	if v.prev != nil {
		r.reap(v.prev)
		v.prev = nil
	}

	if !r.waitForCooldown(v) {
		// Stopped mid-cooldown: v and its tombstone are left unfinalized.
		return
	}

	event := ReapEvent{Vsn: v.vsn}
	if v.tombstone != nil {
		event.TombstoneName = v.tombstone.name
		event.TombstoneExists = true
		event.Destroyed = v.tombstone.shouldDelete.Load()
		if err := v.tombstone.destroy(); err != nil {
			log.Printf("filterstore: reaper: destroying tombstone %q: %v", v.tombstone.name, err)
		}
		v.tombstone = nil
	}
	// Release the version's own container. Entries whose handles live on
	// in the head version are left intact; only this map is dropped.
	v.entries = nil

	if r.onEvent != nil {
		r.onEvent(event)
	}
}

// waitForCooldown sleeps in VERSION_COOLDOWN-sized ticks until a full
// cycle passes with v.is_hot still false. It returns false, without waiting
// further, if Stop is called first.
func (r *Reaper) waitForCooldown(v *DirectoryVersion) bool {
	for {
		v.isHot.Store(false)
		select {
		case <-time.After(r.cooldown):
		case <-r.stopCh:
			return false
		}
		if !v.isHot.Load() {
			return true
		}
	}
}
