package mapper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridmapper/internal/kinematics"
	"github.com/banshee-data/gridmapper/internal/occupancy"
	"github.com/banshee-data/gridmapper/internal/timeutil"
)

type capturePublisher struct {
	mu      sync.Mutex
	updates []*MapUpdate
}

func (p *capturePublisher) Publish(u *MapUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *capturePublisher) all() []*MapUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MapUpdate(nil), p.updates...)
}

func newTestNode(t *testing.T, enabled bool) (*Node, *capturePublisher, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(scanTime)
	pub := &capturePublisher{}
	n := NewNode(newGrid(t, 10, 10), NodeConfig{
		Predictor:               kinematics.DefaultPredictorConfig(),
		StartWithMappingEnabled: enabled,
		SessionID:               "test-session",
		Clock:                   clock,
	}, pub)
	return n, pub, clock
}

func primePose(n *Node) {
	n.UpdatePose(kinematics.Pose{Timestamp: scanTime})
	n.UpdateTwist(kinematics.Twist{})
}

func TestNode_WaitsForPoseAndTwist(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, true)

	assert.False(t, n.HandleScan(singleRay(2)))
	n.UpdatePose(kinematics.Pose{Timestamp: scanTime})
	assert.False(t, n.HandleScan(singleRay(2)))
	n.UpdateTwist(kinematics.Twist{})
	assert.True(t, n.HandleScan(singleRay(2)))

	st := n.Status()
	assert.Equal(t, uint64(3), st.ScansReceived)
	assert.Equal(t, uint64(2), st.ScansAwaiting)
	assert.Equal(t, uint64(1), st.ScansIngested)
	assert.Len(t, pub.all(), 1)
}

func TestNode_MappingDisabled(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, false)
	primePose(n)

	assert.False(t, n.MappingEnabled())
	assert.False(t, n.HandleScan(singleRay(2)))
	assert.Empty(t, pub.all())
	assert.Equal(t, uint64(1), n.Status().ScansDisabled)

	assert.False(t, n.SetMappingEnabled(true))
	assert.True(t, n.HandleScan(singleRay(2)))
	assert.True(t, n.SetMappingEnabled(false))
}

func TestNode_PublishesOnlyOnChange(t *testing.T) {
	t.Parallel()
	n, pub, clock := newTestNode(t, true)
	primePose(n)

	require.True(t, n.HandleScan(singleRay(2)))
	clock.Advance(time.Second)
	assert.False(t, n.HandleScan(singleRay(2)))

	updates := pub.all()
	require.Len(t, updates, 1)
	u := updates[0]
	assert.Equal(t, "test-session", u.SessionID)
	assert.Equal(t, uint64(1), u.Sequence)
	assert.Equal(t, 1, u.Scale)
	assert.Equal(t, occupancy.Cell{X: 10, Y: 10}, u.ExtentInCells)
	assert.Equal(t, occupancy.Point{X: 10, Y: 10}, u.Extent)
	assert.True(t, u.Timestamp.Equal(scanTime))
	assert.Equal(t, 3, u.DeltaGrid.Count())
	assert.Equal(t, 1, u.Grid.Counts()[occupancy.Occupied])
}

func TestNode_UpdateIsACopy(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, true)
	primePose(n)

	require.True(t, n.HandleScan(singleRay(2)))
	first := pub.all()[0]

	n.UpdatePose(kinematics.Pose{X: 0.5, Y: 5.5, Timestamp: scanTime})
	require.True(t, n.HandleScan(singleRay(4)))

	assert.Equal(t, 1, first.Grid.Counts()[occupancy.Occupied], "published grid must not change afterwards")
	assert.Equal(t, 3, first.DeltaGrid.Count())
	assert.Equal(t, uint64(2), pub.all()[1].Sequence)
}

func TestNode_SpeedRejectionDropsScan(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, true)
	n.UpdatePose(kinematics.Pose{Timestamp: scanTime})
	n.UpdateTwist(kinematics.Twist{Linear: 5})

	assert.False(t, n.HandleScan(singleRay(2)))
	assert.Empty(t, pub.all())
	assert.Equal(t, uint64(1), n.Status().ScansRejected)
	assert.Equal(t, 100, n.GridSnapshot().Counts()[occupancy.Unknown])

	n.UpdateTwist(kinematics.Twist{Linear: 3.9})
	assert.True(t, n.HandleScan(singleRay(2)))
}

func TestNode_PredictsPoseAtScanTime(t *testing.T) {
	t.Parallel()
	n, _, _ := newTestNode(t, true)

	// Pose sampled one second before the scan while moving at 2 m/s along +x.
	n.UpdatePose(kinematics.Pose{X: 0.5, Y: 0.5, Timestamp: scanTime.Add(-time.Second)})
	n.UpdateTwist(kinematics.Twist{Linear: 2})
	require.True(t, n.HandleScan(singleRay(2)))

	g := n.GridSnapshot()
	s, err := g.Cell(4, 0)
	require.NoError(t, err)
	assert.Equal(t, occupancy.Occupied, s)
	s, _ = g.Cell(1, 0)
	assert.Equal(t, occupancy.Unknown, s)
}

func TestNode_InvalidScanDropped(t *testing.T) {
	t.Parallel()
	n, _, _ := newTestNode(t, true)
	primePose(n)

	scan := singleRay(2)
	scan.RangeMax = 0
	assert.False(t, n.HandleScan(scan))
	assert.Equal(t, uint64(1), n.Status().ScansInvalid)
}

func TestNode_ZeroTimestampUsesClock(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, true)
	primePose(n)

	scan := singleRay(2)
	scan.Timestamp = time.Time{}
	require.True(t, n.HandleScan(scan))
	assert.Len(t, pub.all(), 1)
}

func TestNode_SetsDirtyFlag(t *testing.T) {
	t.Parallel()
	n, _, _ := newTestNode(t, true)
	primePose(n)

	assert.False(t, n.Signal().Dirty())
	require.True(t, n.HandleScan(singleRay(2)))
	assert.True(t, n.Signal().Dirty())
	assert.Equal(t, 3, n.Signal().Pending())
}

func TestNode_GeneratesSessionID(t *testing.T) {
	t.Parallel()
	n := NewNode(newGrid(t, 2, 2), NodeConfig{}, nil)
	assert.Len(t, n.SessionID(), 36)
	primePose(n)
	// No publisher configured is fine.
	n.SetMappingEnabled(true)
	scan := singleRay(1.5)
	scan.Timestamp = time.Now()
	n.UpdatePose(kinematics.Pose{Timestamp: scan.Timestamp})
	assert.True(t, n.HandleScan(scan))
}

func TestNode_ConcurrentProducers(t *testing.T) {
	t.Parallel()
	n, pub, _ := newTestNode(t, true)
	primePose(n)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(3)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				n.UpdatePose(kinematics.Pose{X: 0.5, Y: 0.5, Timestamp: scanTime})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				n.UpdateTwist(kinematics.Twist{Linear: 1})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = n.Status()
				_ = n.GridSnapshot()
			}
		}
	}()

	var scans sync.WaitGroup
	for i := 0; i < 8; i++ {
		scans.Add(1)
		go func() {
			defer scans.Done()
			n.HandleScan(singleRay(6))
		}()
	}
	scans.Wait()
	close(stop)
	wg.Wait()

	updates := pub.all()
	for i, u := range updates {
		assert.Equal(t, uint64(i+1), u.Sequence)
	}
	assert.Equal(t, uint64(8), n.Status().ScansIngested)
}
