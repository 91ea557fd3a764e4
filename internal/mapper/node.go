// Package mapper turns range scans and a lagged pose estimate into
// monotonic occupancy grid updates.
package mapper

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/gridmapper/internal/kinematics"
	"github.com/banshee-data/gridmapper/internal/occupancy"
	"github.com/banshee-data/gridmapper/internal/timeutil"
)

// NodeConfig configures a Node.
type NodeConfig struct {
	Predictor kinematics.PredictorConfig
	// MinimumRange is applied on top of each scan's range_min.
	MinimumRange            float64
	StartWithMappingEnabled bool
	// SessionID labels updates and snapshots. A random UUID is used when empty.
	SessionID string
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// Node is the mapper: it keeps the latest pose and twist, ingests scans
// one at a time and publishes a MapUpdate whenever the grid changes.
type Node struct {
	sessionID string
	clock     timeutil.Clock
	predictor *kinematics.Predictor
	publisher Publisher
	signal    *ChangeSignal
	enabled   atomic.Bool

	// poseMu guards the pose/twist snapshot. Critical sections only copy.
	poseMu    sync.Mutex
	pose      kinematics.Pose
	twist     kinematics.Twist
	havePose  bool
	haveTwist bool

	// scanMu serialises HandleScan so at most one ingestion is in flight.
	scanMu sync.Mutex

	// gridMu guards grid, ingestor and the counters below. Ingestion holds
	// the write lock; readers copy under the read lock.
	gridMu               sync.RWMutex
	grid                 *occupancy.Grid
	ingestor             *ScanIngestor
	sequence             uint64
	changesSinceSnapshot int
	lastIngest           IngestStats

	counters nodeCounters
}

type nodeCounters struct {
	scansReceived    atomic.Uint64
	scansIngested    atomic.Uint64
	scansDisabled    atomic.Uint64
	scansAwaiting    atomic.Uint64
	scansInvalid     atomic.Uint64
	scansRejected    atomic.Uint64
	updatesPublished atomic.Uint64
}

// NewNode builds a Node around grid. pub may be nil.
func NewNode(grid *occupancy.Grid, cfg NodeConfig, pub Publisher) *Node {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	signal := NewChangeSignal(grid)
	n := &Node{
		sessionID: sessionID,
		clock:     clock,
		predictor: kinematics.NewPredictor(cfg.Predictor),
		publisher: pub,
		signal:    signal,
		grid:      grid,
		ingestor:  NewScanIngestor(grid, signal, cfg.MinimumRange),
	}
	n.enabled.Store(cfg.StartWithMappingEnabled)
	return n
}

// SessionID identifies this mapping run.
func (n *Node) SessionID() string { return n.sessionID }

// Signal exposes the change signal used by the visualisation loop.
func (n *Node) Signal() *ChangeSignal { return n.signal }

// UpdatePose stores the latest odometry sample.
func (n *Node) UpdatePose(p kinematics.Pose) {
	n.poseMu.Lock()
	n.pose = p
	n.havePose = true
	n.poseMu.Unlock()
}

// UpdateTwist stores the latest velocity command.
func (n *Node) UpdateTwist(t kinematics.Twist) {
	n.poseMu.Lock()
	n.twist = t
	n.haveTwist = true
	n.poseMu.Unlock()
}

func (n *Node) snapshot() (kinematics.Pose, kinematics.Twist, bool) {
	n.poseMu.Lock()
	defer n.poseMu.Unlock()
	return n.pose, n.twist, n.havePose && n.haveTwist
}

// SetMappingEnabled toggles ingestion and returns the previous setting.
func (n *Node) SetMappingEnabled(enabled bool) bool {
	prev := n.enabled.Swap(enabled)
	if prev != enabled {
		diagf("mapping enabled: %v -> %v", prev, enabled)
	}
	return prev
}

// MappingEnabled reports whether scans are being ingested.
func (n *Node) MappingEnabled() bool { return n.enabled.Load() }

// HandleScan ingests one scan and reports whether the grid changed. Scans
// arriving while mapping is disabled, before both a pose and a twist have
// been seen, with a malformed header or while moving too fast are dropped
// silently.
func (n *Node) HandleScan(scan Scan) bool {
	n.scanMu.Lock()
	defer n.scanMu.Unlock()

	n.counters.scansReceived.Add(1)
	if !n.enabled.Load() {
		n.counters.scansDisabled.Add(1)
		return false
	}
	pose, twist, ok := n.snapshot()
	if !ok {
		n.counters.scansAwaiting.Add(1)
		return false
	}
	if err := scan.Validate(); err != nil {
		n.counters.scansInvalid.Add(1)
		diagf("dropping scan: %v", err)
		return false
	}
	if scan.Timestamp.IsZero() {
		scan.Timestamp = n.clock.Now()
	}

	pred := n.predictor.Predict(pose, twist, scan.Timestamp)
	if pred.Rejected {
		n.counters.scansRejected.Add(1)
		diagf("dropping scan: linear speed %.2f m/s exceeds %.2f m/s",
			twist.Linear, n.predictor.Config().MaxLinearSpeed)
		return false
	}

	n.gridMu.Lock()
	changed := n.ingestor.Ingest(scan, pred.Pose)
	n.lastIngest = n.ingestor.LastStats()
	var update *MapUpdate
	if changed {
		n.sequence++
		n.changesSinceSnapshot += n.lastIngest.Changed()
		update = &MapUpdate{
			SessionID:     n.sessionID,
			Sequence:      n.sequence,
			Timestamp:     n.clock.Now(),
			Scale:         n.grid.Scale(),
			ExtentInCells: n.grid.ExtentInCells(),
			Extent:        n.grid.Extent(),
			Grid:          n.grid.Clone(),
			DeltaGrid:     n.ingestor.Delta().Clone(),
		}
	}
	n.gridMu.Unlock()
	n.counters.scansIngested.Add(1)

	if !changed {
		return false
	}
	n.signal.MarkDirty()
	tracef("scan %d: freed=%d occupied=%d", update.Sequence, n.lastIngest.CellsFreed, n.lastIngest.CellsOccupied)
	if n.publisher != nil {
		n.publisher.Publish(update)
		n.counters.updatesPublished.Add(1)
	}
	return true
}

// GridSnapshot returns a copy of the current grid.
func (n *Node) GridSnapshot() *occupancy.Grid {
	n.gridMu.RLock()
	defer n.gridMu.RUnlock()
	return n.grid.Clone()
}

// Status is a point-in-time summary for monitoring.
type Status struct {
	SessionID        string      `json:"session_id"`
	MappingEnabled   bool        `json:"mapping_enabled"`
	HavePose         bool        `json:"have_pose"`
	HaveTwist        bool        `json:"have_twist"`
	Sequence         uint64      `json:"sequence"`
	Width            int         `json:"width"`
	Height           int         `json:"height"`
	Scale            int         `json:"scale"`
	Resolution       float64     `json:"resolution"`
	UnknownCells     int         `json:"unknown_cells"`
	FreeCells        int         `json:"free_cells"`
	OccupiedCells    int         `json:"occupied_cells"`
	PendingChanges   int         `json:"pending_changes"`
	ScansReceived    uint64      `json:"scans_received"`
	ScansIngested    uint64      `json:"scans_ingested"`
	ScansDisabled    uint64      `json:"scans_disabled"`
	ScansAwaiting    uint64      `json:"scans_awaiting_pose"`
	ScansInvalid     uint64      `json:"scans_invalid"`
	ScansRejected    uint64      `json:"scans_rejected"`
	UpdatesPublished uint64      `json:"updates_published"`
	LastIngest       IngestStats `json:"last_ingest"`
}

// Status reports counters and grid occupancy.
func (n *Node) Status() Status {
	n.poseMu.Lock()
	havePose, haveTwist := n.havePose, n.haveTwist
	n.poseMu.Unlock()

	n.gridMu.RLock()
	counts := n.grid.Counts()
	s := Status{
		Sequence:       n.sequence,
		Width:          n.grid.Width(),
		Height:         n.grid.Height(),
		Scale:          n.grid.Scale(),
		Resolution:     n.grid.Resolution(),
		UnknownCells:   counts[occupancy.Unknown],
		FreeCells:      counts[occupancy.Free],
		OccupiedCells:  counts[occupancy.Occupied],
		PendingChanges: n.changesSinceSnapshot,
		LastIngest:     n.lastIngest,
	}
	n.gridMu.RUnlock()

	s.SessionID = n.sessionID
	s.MappingEnabled = n.enabled.Load()
	s.HavePose = havePose
	s.HaveTwist = haveTwist
	s.ScansReceived = n.counters.scansReceived.Load()
	s.ScansIngested = n.counters.scansIngested.Load()
	s.ScansDisabled = n.counters.scansDisabled.Load()
	s.ScansAwaiting = n.counters.scansAwaiting.Load()
	s.ScansInvalid = n.counters.scansInvalid.Load()
	s.ScansRejected = n.counters.scansRejected.Load()
	s.UpdatesPublished = n.counters.updatesPublished.Load()
	return s
}
