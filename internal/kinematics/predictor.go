package kinematics

import (
	"math"
	"time"
)

const (
	// DefaultAngularEpsilon is the |omega| below which motion is treated as straight.
	DefaultAngularEpsilon = 1e-6
	// DefaultMaxLinearSpeed is the |v| in m/s above which a prediction is rejected.
	DefaultMaxLinearSpeed = 4.0
)

// PredictorConfig holds the thresholds used by Predictor.
type PredictorConfig struct {
	AngularEpsilon float64
	MaxLinearSpeed float64
}

// DefaultPredictorConfig returns the stock thresholds.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		AngularEpsilon: DefaultAngularEpsilon,
		MaxLinearSpeed: DefaultMaxLinearSpeed,
	}
}

// Prediction is the extrapolated pose. Rejected is set when the twist is too
// fast (or not finite) for a scan taken at that pose to be trusted; callers
// drop the scan rather than treat it as a fault.
type Prediction struct {
	Pose     Pose
	Rejected bool
}

// Predictor extrapolates poses. The zero value is not usable; use NewPredictor.
type Predictor struct {
	cfg PredictorConfig
}

// NewPredictor returns a Predictor. Non-positive thresholds fall back to
// the defaults.
func NewPredictor(cfg PredictorConfig) *Predictor {
	if !(cfg.AngularEpsilon > 0) {
		cfg.AngularEpsilon = DefaultAngularEpsilon
	}
	if !(cfg.MaxLinearSpeed > 0) {
		cfg.MaxLinearSpeed = DefaultMaxLinearSpeed
	}
	return &Predictor{cfg: cfg}
}

// Config returns the thresholds in use.
func (p *Predictor) Config() PredictorConfig { return p.cfg }

// Predict moves pose forward to target assuming twist stays constant over
// the interval. The frame is right-handed with heading measured
// counter-clockwise from +x.
//
// For |omega| below the epsilon the path is a straight line; otherwise it is
// the closed-form arc
//
//	x' = x - (v/w)sin(th) + (v/w)sin(th + w*dT)
//	y' = y + (v/w)cos(th) - (v/w)cos(th + w*dT)
//
// and the heading advances by w*dT in both cases.
func (p *Predictor) Predict(pose Pose, twist Twist, target time.Time) Prediction {
	dT := target.Sub(pose.Timestamp).Seconds()
	v, w := twist.Linear, twist.Angular
	th := pose.Theta

	out := Pose{Timestamp: target}
	if math.Abs(w) < p.cfg.AngularEpsilon {
		out.X = pose.X + dT*v*math.Cos(th)
		out.Y = pose.Y + dT*v*math.Sin(th)
	} else {
		r := v / w
		out.X = pose.X - r*math.Sin(th) + r*math.Sin(th+w*dT)
		out.Y = pose.Y + r*math.Cos(th) - r*math.Cos(th+w*dT)
	}
	out.Theta = NormalizeAngle(th + w*dT)

	rejected := math.Abs(v) > p.cfg.MaxLinearSpeed ||
		math.IsNaN(v) || math.IsNaN(w) || math.IsInf(v, 0) || math.IsInf(w, 0)
	return Prediction{Pose: out, Rejected: rejected}
}
