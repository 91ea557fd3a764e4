package mapper

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// ChangeSignal couples a dirty flag with a display delta grid. The ingestor
// records into it and the visualisation loop drains it on its own cadence,
// so draining never disturbs the per-scan delta.
type ChangeSignal struct {
	dirty atomic.Bool

	mu   sync.Mutex
	show *occupancy.DeltaGrid
}

// NewChangeSignal returns a clean signal shaped like g.
func NewChangeSignal(g *occupancy.Grid) *ChangeSignal {
	return &ChangeSignal{show: occupancy.NewDeltaGrid(g)}
}

// Record marks c in the display delta.
func (s *ChangeSignal) Record(c occupancy.Cell) {
	s.mu.Lock()
	s.show.Mark(c)
	s.mu.Unlock()
}

// MarkDirty flags that the grid changed since the last redraw.
func (s *ChangeSignal) MarkDirty() { s.dirty.Store(true) }

// Dirty reports the flag without clearing it.
func (s *ChangeSignal) Dirty() bool { return s.dirty.Load() }

// TakeDirty returns the flag and clears it.
func (s *ChangeSignal) TakeDirty() bool { return s.dirty.Swap(false) }

// Drain returns a copy of the display delta and clears it.
func (s *ChangeSignal) Drain() *occupancy.DeltaGrid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.show.Clone()
	s.show.Clear()
	return out
}

// Pending returns the number of cells recorded since the last Drain.
func (s *ChangeSignal) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.show.Count()
}
