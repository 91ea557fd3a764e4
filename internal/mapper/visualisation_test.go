package mapper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridmapper/internal/kinematics"
	"github.com/banshee-data/gridmapper/internal/occupancy"
)

type recordingDrawer struct {
	mu     sync.Mutex
	draws  int
	deltas []int
	err    error
}

func (d *recordingDrawer) Draw(g *occupancy.Grid, delta *occupancy.DeltaGrid) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws++
	d.deltas = append(d.deltas, delta.Count())
	return d.err
}

func (d *recordingDrawer) snapshot() (int, []int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws, append([]int(nil), d.deltas...)
}

func TestNode_RedrawOnlyWhenDirty(t *testing.T) {
	t.Parallel()
	n, _, _ := newTestNode(t, true)
	primePose(n)
	d := &recordingDrawer{}

	assert.False(t, n.Redraw(d))

	require.True(t, n.HandleScan(singleRay(2)))
	n.UpdatePose(kinematics.Pose{X: 0.5, Y: 3.5, Timestamp: scanTime})
	require.True(t, n.HandleScan(singleRay(3)))

	assert.True(t, n.Redraw(d))
	assert.False(t, n.Redraw(d))

	draws, deltas := d.snapshot()
	assert.Equal(t, 1, draws)
	// Both scans accumulate into the display delta between draws.
	assert.Equal(t, []int{7}, deltas)
	assert.Equal(t, 0, n.Signal().Pending())
}

func TestNode_RedrawDrainsOnError(t *testing.T) {
	t.Parallel()
	n, _, _ := newTestNode(t, true)
	primePose(n)
	require.True(t, n.HandleScan(singleRay(2)))

	d := &recordingDrawer{err: errors.New("window closed")}
	assert.True(t, n.Redraw(d))
	assert.Equal(t, 0, n.Signal().Pending())
}

func TestNode_RunVisualisation(t *testing.T) {
	t.Parallel()
	n, _, clock := newTestNode(t, true)
	primePose(n)
	d := &recordingDrawer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.RunVisualisation(ctx, d, 2*time.Second) }()
	waitFor(t, func() bool { return clock.TickerCount() == 1 })

	// A tick with nothing dirty draws nothing.
	clock.Advance(2 * time.Second)
	require.True(t, n.HandleScan(singleRay(2)))
	clock.Advance(2 * time.Second)
	waitFor(t, func() bool { draws, _ := d.snapshot(); return draws == 1 })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("visualisation loop did not stop")
	}
	draws, _ := d.snapshot()
	assert.Equal(t, 1, draws)
}
