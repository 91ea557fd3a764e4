package serialmux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/banshee-data/gridmapper/internal/kinematics"
)

// PoseSink receives decoded odometry. *mapper.Node satisfies it.
type PoseSink interface {
	UpdatePose(kinematics.Pose)
	UpdateTwist(kinematics.Twist)
}

// Quaternion is an orientation as sent by bridges that forward full 3D
// odometry.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// OdometryMessage is one "odom" line. Exactly one of Theta or Orientation
// gives the heading. Stamp is unix seconds; zero means "now".
type OdometryMessage struct {
	Type        string      `json:"type"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Theta       *float64    `json:"theta,omitempty"`
	Orientation *Quaternion `json:"orientation,omitempty"`
	Stamp       float64     `json:"stamp,omitempty"`
}

// TwistMessage is one "cmd_vel" line.
type TwistMessage struct {
	Type    string  `json:"type"`
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

var errNoHeading = errors.New("odometry line has neither theta nor orientation")

// Pose converts the message, stamping it with now when Stamp is unset.
func (m OdometryMessage) Pose(now time.Time) (kinematics.Pose, error) {
	p := kinematics.Pose{X: m.X, Y: m.Y, Timestamp: now}
	switch {
	case m.Theta != nil:
		p.Theta = kinematics.NormalizeAngle(*m.Theta)
	case m.Orientation != nil:
		q := m.Orientation
		if q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 0 {
			return kinematics.Pose{}, errors.New("odometry orientation is a zero quaternion")
		}
		p.Theta = kinematics.YawFromQuaternion(q.X, q.Y, q.Z, q.W)
	default:
		return kinematics.Pose{}, errNoHeading
	}
	if m.Stamp > 0 {
		sec, frac := math.Modf(m.Stamp)
		p.Timestamp = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return p, nil
}

// HandleEvent decodes one line and forwards it to sink. Unknown lines are
// logged and ignored.
func HandleEvent(sink PoseSink, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeOdometry:
		var m OdometryMessage
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return fmt.Errorf("failed to decode odometry: %w", err)
		}
		pose, err := m.Pose(time.Now())
		if err != nil {
			return fmt.Errorf("failed to handle odometry: %w", err)
		}
		sink.UpdatePose(pose)
	case EventTypeTwist:
		var m TwistMessage
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return fmt.Errorf("failed to decode cmd_vel: %w", err)
		}
		sink.UpdateTwist(kinematics.Twist{Linear: m.Linear, Angular: m.Angular})
	default:
		log.Printf("unknown event type: %s", payload)
	}
	return nil
}

// Pump subscribes to mux and feeds every line to sink until ctx is done or
// the mux closes the subscription.
func Pump(ctx context.Context, mux SerialMuxInterface, sink PoseSink) {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := HandleEvent(sink, line); err != nil {
				log.Printf("serialmux: %v", err)
			}
		}
	}
}
