// Package diag is bloomd's diagnostics surface: a bounded, read-only record
// of recent reaper reclamations for operators. It carries no correctness
// state of its own — purely observability on top of internal/filterstore.
package diag

import (
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SimonWaldherr/bloomd/internal/filterstore"
)

// Event is one recorded reaper reclamation, augmented with a monotonic
// sequence number so the most recent events can be listed in order.
type Event struct {
	Seq int64
	filterstore.ReapEvent
}

// Recorder is a bounded ring buffer of the last N reaper events, backed by
// an LRU cache keyed on sequence number (the oldest entries are the first
// evicted once the buffer is full).
type Recorder struct {
	cache *lru.Cache[int64, Event]
	seq   atomic.Int64
	mu    sync.Mutex // guards cache.Add + order bookkeeping together
}

// NewRecorder builds a Recorder holding at most capacity events.
func NewRecorder(capacity int) (*Recorder, error) {
	if capacity <= 0 {
		capacity = 256
	}
	c, err := lru.New[int64, Event](capacity)
	if err != nil {
		return nil, err
	}
	return &Recorder{cache: c}, nil
}

// Record appends one reaper event, evicting the oldest if the buffer is full.
func (r *Recorder) Record(e filterstore.ReapEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.seq.Add(1)
	r.cache.Add(seq, Event{Seq: seq, ReapEvent: e})
}

// Recent returns every currently buffered event, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	keys := r.cache.Keys()
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		if e, ok := r.cache.Peek(k); ok {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
