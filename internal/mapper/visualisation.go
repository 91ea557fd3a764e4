package mapper

import (
	"context"
	"time"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// DefaultVisualisationInterval is the redraw poll period.
const DefaultVisualisationInterval = 2 * time.Second

// Drawer renders the grid and the cells changed since the previous draw.
type Drawer interface {
	Draw(grid *occupancy.Grid, delta *occupancy.DeltaGrid) error
}

// RunVisualisation polls the dirty flag every interval and redraws when it
// is set. It blocks until ctx is cancelled.
func (n *Node) RunVisualisation(ctx context.Context, d Drawer, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultVisualisationInterval
	}
	ticker := n.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			n.Redraw(d)
		}
	}
}

// Redraw draws once if the grid changed since the last draw and reports
// whether it did. The display delta is drained whether or not Draw succeeds.
func (n *Node) Redraw(d Drawer) bool {
	if !n.signal.TakeDirty() {
		return false
	}
	grid := n.GridSnapshot()
	delta := n.signal.Drain()
	if err := d.Draw(grid, delta); err != nil {
		opsf("visualisation draw failed: %v", err)
	}
	return true
}
