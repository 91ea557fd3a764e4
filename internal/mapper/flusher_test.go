package mapper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/gridmapper/internal/monitoring"
	"github.com/banshee-data/gridmapper/internal/timeutil"
)

// mockPersister implements Persister for testing
type mockPersister struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (m *mockPersister) Persist(store SnapshotStore, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
	return m.err
}

func (m *mockPersister) getReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.reasons...)
}

func init() {
	monitoring.SetLogger(nil)
}

func TestNewFlusher_Defaults(t *testing.T) {
	f := NewFlusher(FlusherConfig{Persister: &mockPersister{}, Store: &memStore{}, Interval: time.Minute})
	if f.reason != ReasonPeriodic {
		t.Errorf("expected reason %q, got %q", ReasonPeriodic, f.reason)
	}
	if f.IsRunning() {
		t.Error("new flusher should not be running")
	}
}

func TestFlusher_ZeroIntervalReturns(t *testing.T) {
	f := NewFlusher(FlusherConfig{Persister: &mockPersister{}, Store: &memStore{}})
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestFlusher_TicksAndFinalFlush(t *testing.T) {
	clock := timeutil.NewMockClock(scanTime)
	p := &mockPersister{}
	f := NewFlusher(FlusherConfig{
		Persister: p,
		Store:     &memStore{},
		Interval:  10 * time.Second,
		Clock:     clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	waitFor(t, func() bool { return clock.TickerCount() == 1 })
	clock.Advance(10 * time.Second)
	waitFor(t, func() bool { return len(p.getReasons()) == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flusher did not stop")
	}

	got := p.getReasons()
	want := []string{ReasonPeriodic, ReasonFinal}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("reasons = %v, want %v", got, want)
	}
}

func TestFlusher_StopIsIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(scanTime)
	p := &mockPersister{}
	f := NewFlusher(FlusherConfig{Persister: p, Store: &memStore{}, Interval: time.Second, Clock: clock})

	go f.Run(context.Background())
	waitFor(t, f.IsRunning)

	f.Stop()
	f.Stop()
	if f.IsRunning() {
		t.Error("flusher still running after Stop")
	}
	if got := p.getReasons(); len(got) != 1 || got[0] != ReasonFinal {
		t.Errorf("reasons = %v, want [final_flush]", got)
	}
}

func TestFlusher_FlushNowWithNode(t *testing.T) {
	n, _, _ := newTestNode(t, true)
	primePose(n)
	n.HandleScan(singleRay(2))

	store := &memStore{}
	f := NewFlusher(FlusherConfig{Persister: n, Store: store, Interval: time.Minute})
	if err := f.FlushNow(ReasonManual); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 snapshot, got %d", store.count())
	}

	empty := NewFlusher(FlusherConfig{})
	if err := empty.FlushNow(ReasonManual); err != nil {
		t.Errorf("FlushNow without store should be a no-op, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
