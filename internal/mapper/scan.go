package mapper

import (
	"fmt"
	"math"
	"time"
)

// Scan is one sweep of a planar range sensor. Reading i was taken at
// AngleMin + i*AngleIncrement in the sensor frame.
type Scan struct {
	Ranges         []float64 `json:"ranges"`
	AngleMin       float64   `json:"angle_min"`
	AngleMax       float64   `json:"angle_max"`
	AngleIncrement float64   `json:"angle_increment"`
	RangeMin       float64   `json:"range_min"`
	RangeMax       float64   `json:"range_max"`
	Timestamp      time.Time `json:"timestamp"`
}

// RayCount is the number of rays the ingestor considers:
// floor((AngleMax-AngleMin)/AngleIncrement), capped at len(Ranges).
// A non-positive or non-finite increment yields zero.
func (s Scan) RayCount() int {
	if !(s.AngleIncrement > 0) || math.IsInf(s.AngleIncrement, 0) {
		return 0
	}
	span := (s.AngleMax - s.AngleMin) / s.AngleIncrement
	if !(span > 0) || math.IsInf(span, 0) {
		return 0
	}
	n := int(math.Min(math.Floor(span), float64(len(s.Ranges))))
	return n
}

// Validate reports header fields that make the scan unusable.
func (s Scan) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"angle_min", s.AngleMin},
		{"angle_max", s.AngleMax},
		{"angle_increment", s.AngleIncrement},
		{"range_min", s.RangeMin},
		{"range_max", s.RangeMax},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("scan %s is not finite", f.name)
		}
	}
	if s.RangeMin < 0 {
		return fmt.Errorf("scan range_min %v is negative", s.RangeMin)
	}
	if s.RangeMax <= s.RangeMin {
		return fmt.Errorf("scan range_max %v not above range_min %v", s.RangeMax, s.RangeMin)
	}
	return nil
}
