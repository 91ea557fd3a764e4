package mapper

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/gridmapper/internal/monitoring"
	"github.com/banshee-data/gridmapper/internal/timeutil"
)

const (
	// ReasonPeriodic labels snapshots written on the flush interval.
	ReasonPeriodic = "periodic_flush"
	// ReasonFinal labels the snapshot written on shutdown.
	ReasonFinal = "final_flush"
	// ReasonManual labels snapshots requested over the API.
	ReasonManual = "manual"
)

// Flusher periodically persists a Persister to a SnapshotStore and writes
// a final snapshot when stopped.
type Flusher struct {
	persister Persister
	store     SnapshotStore
	interval  time.Duration
	reason    string
	clock     timeutil.Clock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// FlusherConfig configures a Flusher.
type FlusherConfig struct {
	Persister Persister
	Store     SnapshotStore
	// Interval between flushes. Run returns immediately when non-positive.
	Interval time.Duration
	// Reason defaults to ReasonPeriodic.
	Reason string
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// NewFlusher returns a stopped Flusher.
func NewFlusher(cfg FlusherConfig) *Flusher {
	reason := cfg.Reason
	if reason == "" {
		reason = ReasonPeriodic
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Flusher{
		persister: cfg.Persister,
		store:     cfg.Store,
		interval:  cfg.Interval,
		reason:    reason,
		clock:     clock,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run flushes on every tick until ctx is cancelled or Stop is called, then
// performs a final flush. It returns nil on clean shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		monitoring.Logf("Flusher: interval is zero or negative, not starting")
		return nil
	}

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	monitoring.Logf("Flusher started: interval=%v", f.interval)
	for {
		select {
		case <-ctx.Done():
			f.flushWith(ReasonFinal)
			return nil
		case <-f.stopCh:
			f.flushWith(ReasonFinal)
			return nil
		case <-ticker.C():
			f.flushWith(f.reason)
		}
	}
}

// Stop ends Run and waits for the final flush. Safe to call repeatedly.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	doneCh := f.doneCh
	f.mu.Unlock()
	<-doneCh
}

// IsRunning reports whether Run is active.
func (f *Flusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// FlushNow persists immediately with the given reason.
func (f *Flusher) FlushNow(reason string) error {
	if f.persister == nil || f.store == nil {
		return nil
	}
	return f.persister.Persist(f.store, reason)
}

func (f *Flusher) flushWith(reason string) {
	if err := f.FlushNow(reason); err != nil {
		monitoring.Logf("Flusher: error during %s: %v", reason, err)
	}
}
