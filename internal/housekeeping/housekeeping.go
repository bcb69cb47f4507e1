// Package housekeeping runs scheduled maintenance jobs against a
// filterstore.Manager: a periodic flush-all and a periodic cold-filter
// sweep, both additive to (never a substitute for) the Reaper.
package housekeeping

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/SimonWaldherr/bloomd/internal/filterstore"
)

// Config controls the cron schedules of the two built-in jobs.
type Config struct {
	// FlushAllCron schedules a flush of every live filter, e.g. "@every 1m".
	FlushAllCron string
	// ColdSweepCron schedules a list_cold pass logged for operational
	// visibility, e.g. "@every 5m".
	ColdSweepCron string
}

// Scheduler wraps robfig/cron/v3, tracking which named jobs are currently
// running so a second trigger of the same job can be skipped instead of
// overlapping with one still in flight.
type Scheduler struct {
	mgr  *filterstore.Manager
	cron *cron.Cron

	mu      sync.Mutex
	running map[string]bool
}

// New builds a Scheduler bound to mgr. Either cron expression may be empty
// to disable that job.
func New(mgr *filterstore.Manager, cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		mgr:     mgr,
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		running: make(map[string]bool),
	}

	if cfg.FlushAllCron != "" {
		if _, err := s.cron.AddFunc(cfg.FlushAllCron, s.runFlushAll); err != nil {
			return nil, err
		}
	}
	if cfg.ColdSweepCron != "" {
		if _, err := s.cron.AddFunc(cfg.ColdSweepCron, s.runColdSweep); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start launches the cron scheduler's own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until any in-flight job finishes and no further jobs fire.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) markRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) clearRunning(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

func (s *Scheduler) runFlushAll() {
	if !s.markRunning("flush-all") {
		log.Printf("housekeeping: flush-all already running, skipping")
		return
	}
	defer s.clearRunning("flush-all")

	names := s.mgr.ListAll()
	flushed := 0
	for _, name := range names {
		if st := s.mgr.Flush(name); st == filterstore.StatusOK {
			flushed++
		}
	}
	log.Printf("housekeeping: flush-all completed, flushed %d/%d filters", flushed, len(names))
}

func (s *Scheduler) runColdSweep() {
	if !s.markRunning("cold-sweep") {
		log.Printf("housekeeping: cold-sweep already running, skipping")
		return
	}
	defer s.clearRunning("cold-sweep")

	cold := s.mgr.ListCold()
	log.Printf("housekeeping: cold-sweep found %d cold filter(s): %v", len(cold), cold)
}
