// Package monitoring holds the mapper's swappable diagnostic logger.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf writes a diagnostic line. It is log.Printf unless replaced.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. nil mutes diagnostics.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	Logf = f
}

// Limiter passes at most one message per interval through Logf and counts
// what it suppressed in between. The zero value logs everything.
type Limiter struct {
	Interval time.Duration

	mu         sync.Mutex
	last       time.Time
	suppressed int
	now        func() time.Time
}

// NewLimiter returns a Limiter with the given interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{Interval: interval}
}

// Logf logs unless a message already went out within the interval. The
// first message after a quiet period reports how many were suppressed.
func (l *Limiter) Logf(format string, v ...any) bool {
	l.mu.Lock()
	now := time.Now()
	if l.now != nil {
		now = l.now()
	}
	if !l.last.IsZero() && now.Sub(l.last) < l.Interval {
		l.suppressed++
		l.mu.Unlock()
		return false
	}
	skipped := l.suppressed
	l.suppressed = 0
	l.last = now
	l.mu.Unlock()

	if skipped > 0 {
		Logf(format+" (%d similar suppressed)", append(v, skipped)...)
	} else {
		Logf(format, v...)
	}
	return true
}

// Suppressed reports messages dropped since the last one logged.
func (l *Limiter) Suppressed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}
