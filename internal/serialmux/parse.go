package serialmux

import "encoding/json"

const (
	EventTypeOdometry = "odom"
	EventTypeTwist    = "cmd_vel"
	EventTypeUnknown  = "unknown"
)

// ClassifyPayload returns the event type named by a line's "type" field.
// Lines that are not JSON objects, or name another type, are unknown.
func ClassifyPayload(payload string) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil {
		return EventTypeUnknown
	}
	switch head.Type {
	case EventTypeOdometry, EventTypeTwist:
		return head.Type
	default:
		return EventTypeUnknown
	}
}
