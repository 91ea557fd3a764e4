package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridmapper/internal/kinematics"
)

func TestEncodeDecodeMapUpdate(t *testing.T) {
	t.Parallel()
	g := newGrid(t, 10, 10)
	in := NewScanIngestor(g, nil, 0)
	require.True(t, in.Ingest(singleRay(3.0), kinematics.Pose{X: 0.5, Y: 4.5}))

	u := &MapUpdate{
		SessionID:     "session-1",
		Sequence:      7,
		Timestamp:     scanTime,
		Scale:         g.Scale(),
		ExtentInCells: g.ExtentInCells(),
		Extent:        g.Extent(),
		Grid:          g.Clone(),
		DeltaGrid:     in.Delta().Clone(),
	}

	blob, err := EncodeMapUpdate(u)
	require.NoError(t, err)

	got, err := DecodeMapUpdate(blob)
	require.NoError(t, err)
	assert.Equal(t, u.SessionID, got.SessionID)
	assert.Equal(t, u.Sequence, got.Sequence)
	assert.True(t, u.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, u.ExtentInCells, got.ExtentInCells)
	assert.Equal(t, u.Extent, got.Extent)
	assert.True(t, u.Grid.Equal(got.Grid))
	assert.Equal(t, u.DeltaGrid.Cells(), got.DeltaGrid.Cells())
}

func TestEncodeMapUpdate_RequiresGrid(t *testing.T) {
	t.Parallel()
	_, err := EncodeMapUpdate(nil)
	assert.Error(t, err)
	_, err = EncodeMapUpdate(&MapUpdate{})
	assert.Error(t, err)
}

func TestDecodeMapUpdate_Garbage(t *testing.T) {
	t.Parallel()
	_, err := DecodeMapUpdate([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPublisherFunc(t *testing.T) {
	t.Parallel()
	var got *MapUpdate
	var p Publisher = PublisherFunc(func(u *MapUpdate) { got = u })
	u := &MapUpdate{Sequence: 3, Grid: newGrid(t, 1, 1)}
	p.Publish(u)
	assert.Same(t, u, got)
}
