package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridmapper/internal/network"
)

func TestRoomScan(t *testing.T) {
	stamp := time.Unix(1700000000, 0)
	s := roomScan(4, 4, 10, stamp)
	require.NoError(t, s.Validate())
	assert.Equal(t, 4, s.RayCount())
	// Rays at -pi, -pi/2, 0 and pi/2 hit walls 2m away.
	for i, r := range s.Ranges {
		assert.InDelta(t, 2.0, r, 1e-9, "ray %d", i)
	}

	far := roomScan(8, 30, 10, time.Time{})
	assert.True(t, math.IsInf(far.Ranges[0], 1))
}

func TestRoomScan_SurvivesCodec(t *testing.T) {
	s := roomScan(360, 4, 10, time.Unix(0, 42).UTC())
	data, err := network.EncodeScan(s)
	require.NoError(t, err)
	got, err := network.DecodeScan(data)
	require.NoError(t, err)
	assert.Len(t, got.Ranges, 360)
	assert.Equal(t, s.Timestamp, got.Timestamp)
}
