package mapper

import (
	"math"

	"github.com/banshee-data/gridmapper/internal/kinematics"
	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// IngestStats counts what happened during one Ingest call.
type IngestStats struct {
	Rays             int `json:"rays"`
	RaysSkipped      int `json:"rays_skipped"`
	RaysMalformed    int `json:"rays_malformed"`
	RaysBlocked      int `json:"rays_blocked"`
	CellsFreed       int `json:"cells_freed"`
	CellsOccupied    int `json:"cells_occupied"`
	CellsOutOfBounds int `json:"cells_out_of_bounds"`
}

// Changed returns the number of cell transitions.
func (s IngestStats) Changed() int { return s.CellsFreed + s.CellsOccupied }

// ScanIngestor applies scans to a grid under the monotonic update rule.
// It owns the grid and the per-scan delta; callers serialise Ingest.
type ScanIngestor struct {
	grid     *occupancy.Grid
	delta    *occupancy.DeltaGrid
	signal   *ChangeSignal
	minRange float64
	last     IngestStats
}

// NewScanIngestor wires an ingestor to grid. signal may be nil when no
// display delta is needed. minRange is a floor applied on top of each
// scan's own range_min.
func NewScanIngestor(grid *occupancy.Grid, signal *ChangeSignal, minRange float64) *ScanIngestor {
	if !(minRange > 0) {
		minRange = 0
	}
	return &ScanIngestor{
		grid:     grid,
		delta:    occupancy.NewDeltaGrid(grid),
		signal:   signal,
		minRange: minRange,
	}
}

// Grid returns the live grid. Only the goroutine that calls Ingest may use it.
func (in *ScanIngestor) Grid() *occupancy.Grid { return in.grid }

// Delta returns the live per-scan delta, valid until the next Ingest.
func (in *ScanIngestor) Delta() *occupancy.DeltaGrid { return in.delta }

// LastStats returns the counters from the most recent Ingest.
func (in *ScanIngestor) LastStats() IngestStats { return in.last }

// Ingest casts every valid ray of scan from pose and reports whether any
// cell changed. Cells along a ray become Free up to the first Occupied cell;
// a ray that reaches an obstacle return marks its end cell Occupied. The
// per-scan delta is cleared first and then holds exactly the cells changed
// by this call.
func (in *ScanIngestor) Ingest(scan Scan, pose kinematics.Pose) bool {
	in.delta.Clear()
	stats := IngestStats{}
	changed := false

	rangeMin := math.Max(scan.RangeMin, in.minRange)
	n := scan.RayCount()
	for i := 0; i < n; i++ {
		stats.Rays++
		r := scan.Ranges[i]
		if math.IsNaN(r) || r <= rangeMin {
			stats.RaysSkipped++
			continue
		}

		endsOnObstacle := r < scan.RangeMax
		if !endsOnObstacle {
			r = scan.RangeMax
		}

		angle := scan.AngleMin + float64(i)*scan.AngleIncrement + pose.Theta
		cosA, sinA := math.Cos(angle), math.Sin(angle)
		near := occupancy.Point{X: pose.X + rangeMin*cosA, Y: pose.Y + rangeMin*sinA}
		far := occupancy.Point{X: pose.X + r*cosA, Y: pose.Y + r*sinA}

		path := occupancy.Trace(in.grid, near, far)
		if len(path) == 0 {
			stats.RaysMalformed++
			tracef("ray %d: malformed cast near=%v far=%v", i, near, far)
			continue
		}

		if in.castRay(path, endsOnObstacle, &stats) {
			changed = true
		}
	}

	in.last = stats
	if stats.CellsOutOfBounds > 0 {
		tracef("scan at %s: %d cells outside grid", scan.Timestamp.Format("15:04:05.000"), stats.CellsOutOfBounds)
	}
	return changed
}

// castRay walks one path near to far. When the ray ends on an obstacle the
// end cell goes straight to Occupied and is counted once.
func (in *ScanIngestor) castRay(path occupancy.CellPath, endsOnObstacle bool, stats *IngestStats) bool {
	changed := false
	traversedToEnd := true
	last := len(path) - 1
	for i, c := range path {
		state, err := in.grid.Cell(c.X, c.Y)
		if err != nil {
			stats.CellsOutOfBounds++
			continue
		}
		if state == occupancy.Occupied {
			traversedToEnd = false
			stats.RaysBlocked++
			break
		}
		if i == last && endsOnObstacle {
			break
		}
		if ok, _ := in.grid.Apply(c.X, c.Y, occupancy.Free); ok {
			in.mark(c)
			stats.CellsFreed++
			changed = true
		}
	}

	if !traversedToEnd || !endsOnObstacle {
		return changed
	}
	end, _ := path.Last()
	ok, err := in.grid.Apply(end.X, end.Y, occupancy.Occupied)
	if err != nil {
		return changed
	}
	if ok {
		in.mark(end)
		stats.CellsOccupied++
		changed = true
	}
	return changed
}

func (in *ScanIngestor) mark(c occupancy.Cell) {
	in.delta.Mark(c)
	if in.signal != nil {
		in.signal.Record(c)
	}
}
