// Package timeutil lets the mapper's loops and timestamps run against a
// controllable clock in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the current time and tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the channel-and-stop surface of time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

// MockClock only moves when Advance is called. Tickers it hands out fire
// at most once per Advance, and like time.Ticker drop ticks nobody reads.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
}

// NewMockClock returns a MockClock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires every ticker whose next
// deadline has passed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped || c.now.Before(t.next) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		t.next = c.now.Add(t.every)
	}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{clock: c, ch: make(chan time.Time, 1), every: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// TickerCount reports how many tickers were created, stopped or not. Tests
// poll it to know a loop is running before they advance the clock.
func (c *MockClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type mockTicker struct {
	clock   *MockClock
	ch      chan time.Time
	every   time.Duration
	next    time.Time
	stopped bool
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
