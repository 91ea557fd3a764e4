package mapper

import (
	"fmt"
	"time"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// GridSnapshot is a persisted copy of the grid. GridBlob holds the output of
// occupancy.EncodeGrid.
type GridSnapshot struct {
	SnapshotID     int64
	SessionID      string
	TakenUnixNanos int64
	Width          int
	Height         int
	Scale          int
	Resolution     float64
	GridBlob       []byte
	ChangedCells   int
	Reason         string
}

// SnapshotStore persists grid snapshots. Implemented by mapdb.DB.
type SnapshotStore interface {
	InsertGridSnapshot(s *GridSnapshot) (int64, error)
}

// Persister is anything that can write its state to a SnapshotStore.
type Persister interface {
	Persist(store SnapshotStore, reason string) error
}

// Persist copies the grid under the read lock, encodes it and writes it to
// store. Nothing is written when no cell changed since the last snapshot,
// except for final flushes.
func (n *Node) Persist(store SnapshotStore, reason string) error {
	if n == nil || store == nil {
		return nil
	}

	n.gridMu.RLock()
	grid := n.grid.Clone()
	changes := n.changesSinceSnapshot
	n.gridMu.RUnlock()

	if changes == 0 && reason != ReasonFinal {
		diagf("persist skipped (%s): no changes since last snapshot", reason)
		return nil
	}

	blob, err := occupancy.EncodeGrid(grid)
	if err != nil {
		return fmt.Errorf("failed to encode grid: %w", err)
	}
	snap := &GridSnapshot{
		SessionID:      n.sessionID,
		TakenUnixNanos: n.clock.Now().UnixNano(),
		Width:          grid.Width(),
		Height:         grid.Height(),
		Scale:          grid.Scale(),
		Resolution:     grid.Resolution(),
		GridBlob:       blob,
		ChangedCells:   changes,
		Reason:         reason,
	}
	id, err := store.InsertGridSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to insert grid snapshot: %w", err)
	}

	n.gridMu.Lock()
	n.changesSinceSnapshot -= changes
	if n.changesSinceSnapshot < 0 {
		n.changesSinceSnapshot = 0
	}
	n.gridMu.Unlock()

	diagf("persisted grid snapshot id=%d reason=%s changed=%d size=%dB", id, reason, changes, len(blob))
	return nil
}

// Restore loads a previously persisted grid. The snapshot must have the
// same geometry as the live grid; cells are copied as-is.
func (n *Node) Restore(snap *GridSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	restored, err := occupancy.DecodeGrid(snap.GridBlob)
	if err != nil {
		return err
	}

	n.gridMu.Lock()
	defer n.gridMu.Unlock()
	if restored.Width() != n.grid.Width() || restored.Height() != n.grid.Height() ||
		restored.Scale() != n.grid.Scale() || restored.Resolution() != n.grid.Resolution() {
		return fmt.Errorf("snapshot geometry %dx%d scale=%d res=%v does not match grid %dx%d scale=%d res=%v",
			restored.Width(), restored.Height(), restored.Scale(), restored.Resolution(),
			n.grid.Width(), n.grid.Height(), n.grid.Scale(), n.grid.Resolution())
	}
	if err := n.grid.Restore(restored.States()); err != nil {
		return err
	}
	n.signal.MarkDirty()
	opsf("restored grid snapshot id=%d from %s", snap.SnapshotID,
		time.Unix(0, snap.TakenUnixNanos).UTC().Format(time.RFC3339))
	return nil
}
