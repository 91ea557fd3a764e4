package network

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStats counts datagrams and their outcome between log reports.
type PacketStats struct {
	mu        sync.Mutex
	packets   int64
	bytes     int64
	malformed int64
	accepted  int64
	dropped   int64
	lastReset time.Time
}

// StatsSnapshot is a point-in-time copy of PacketStats.
type StatsSnapshot struct {
	Packets   int64         `json:"packets"`
	Bytes     int64         `json:"bytes"`
	Malformed int64         `json:"malformed"`
	Accepted  int64         `json:"accepted"`
	Dropped   int64         `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

// NewPacketStats returns zeroed stats.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket counts one received datagram of n bytes.
func (ps *PacketStats) AddPacket(n int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(n)
}

// AddMalformed counts a datagram that failed to decode.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformed++
}

// AddScan counts a decoded scan and whether the handler applied it.
func (ps *PacketStats) AddScan(applied bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if applied {
		ps.accepted++
	} else {
		ps.dropped++
	}
}

// Snapshot returns the current counts without resetting them.
func (ps *PacketStats) Snapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.snapshotLocked(time.Now())
}

func (ps *PacketStats) snapshotLocked(now time.Time) StatsSnapshot {
	return StatsSnapshot{
		Packets:   ps.packets,
		Bytes:     ps.bytes,
		Malformed: ps.malformed,
		Accepted:  ps.accepted,
		Dropped:   ps.dropped,
		Duration:  now.Sub(ps.lastReset),
	}
}

// GetAndReset returns the current counts and zeroes them.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	now := time.Now()
	s := ps.snapshotLocked(now)
	ps.packets, ps.bytes, ps.malformed, ps.accepted, ps.dropped = 0, 0, 0, 0, 0
	ps.lastReset = now
	return s
}

// LogStats logs rates since the last report. Quiet intervals log nothing.
func (ps *PacketStats) LogStats() {
	s := ps.GetAndReset()
	if s.Packets == 0 {
		return
	}
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("Scan stats (/sec): %.1f packets, %.1f KB, %.1f applied",
		float64(s.Packets)/secs, float64(s.Bytes)/secs/1024, float64(s.Accepted)/secs)
	if s.Dropped > 0 {
		msg += fmt.Sprintf(", %d not applied", s.Dropped)
	}
	if s.Malformed > 0 {
		msg += fmt.Sprintf(", %d malformed", s.Malformed)
	}
	log.Print(msg)
}
