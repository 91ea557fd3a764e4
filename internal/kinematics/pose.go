// Package kinematics extrapolates a stale pose sample to a later instant
// using a constant-velocity unicycle model.
package kinematics

import (
	"math"
	"time"
)

// Pose is a planar position and heading, stamped with the time it was sampled.
type Pose struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Theta     float64   `json:"theta"`
	Timestamp time.Time `json:"timestamp"`
}

// Twist is the most recent commanded velocity. It carries no timestamp and
// is assumed valid at any instant.
type Twist struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// YawFromQuaternion extracts the heading about the z axis from an
// orientation quaternion.
func YawFromQuaternion(x, y, z, w float64) float64 {
	sinYaw := 2 * (w*z + x*y)
	cosYaw := 1 - 2*(y*y+z*z)
	return math.Atan2(sinYaw, cosYaw)
}

// NormalizeAngle wraps a in radians into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
