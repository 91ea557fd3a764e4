package mapper

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// MapUpdate is emitted after every scan that changed the grid. Grid and
// DeltaGrid are private copies owned by the receiver.
type MapUpdate struct {
	SessionID     string
	Sequence      uint64
	Timestamp     time.Time
	Scale         int
	ExtentInCells occupancy.Cell
	Extent        occupancy.Point
	Grid          *occupancy.Grid
	DeltaGrid     *occupancy.DeltaGrid
}

// Publisher receives map updates. Implementations must not block for long;
// Publish is called with the ingestion lock released but on the scan path.
type Publisher interface {
	Publish(u *MapUpdate)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(u *MapUpdate)

func (f PublisherFunc) Publish(u *MapUpdate) { f(u) }

// wireUpdate is the gob form of MapUpdate.
type wireUpdate struct {
	SessionID      string
	Sequence       uint64
	TimestampNanos int64
	Scale          int
	ExtentInCells  occupancy.Cell
	Extent         occupancy.Point
	Grid           []byte
	DeltaCells     []occupancy.Cell
}

// EncodeMapUpdate serializes u as gzip-compressed gob for the wire.
func EncodeMapUpdate(u *MapUpdate) ([]byte, error) {
	if u == nil || u.Grid == nil {
		return nil, fmt.Errorf("map update has no grid")
	}
	grid, err := occupancy.EncodeGrid(u.Grid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	w := wireUpdate{
		SessionID:      u.SessionID,
		Sequence:       u.Sequence,
		TimestampNanos: u.Timestamp.UnixNano(),
		Scale:          u.Scale,
		ExtentInCells:  u.ExtentInCells,
		Extent:         u.Extent,
		Grid:           grid,
	}
	if u.DeltaGrid != nil {
		w.DeltaCells = u.DeltaGrid.Cells()
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&w); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMapUpdate reverses EncodeMapUpdate.
func DecodeMapUpdate(data []byte) (*MapUpdate, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var w wireUpdate
	if err := gob.NewDecoder(gz).Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to decode map update: %w", err)
	}
	grid, err := occupancy.DecodeGrid(w.Grid)
	if err != nil {
		return nil, err
	}
	delta := occupancy.NewDeltaGrid(grid)
	for _, c := range w.DeltaCells {
		if !delta.Mark(c) {
			return nil, fmt.Errorf("delta cell %v outside %dx%d grid", c, grid.Width(), grid.Height())
		}
	}
	return &MapUpdate{
		SessionID:     w.SessionID,
		Sequence:      w.Sequence,
		Timestamp:     time.Unix(0, w.TimestampNanos).UTC(),
		Scale:         w.Scale,
		ExtentInCells: w.ExtentInCells,
		Extent:        w.Extent,
		Grid:          grid,
		DeltaGrid:     delta,
	}, nil
}
