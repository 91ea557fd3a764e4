package mapper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Scan)
		wantErr string
	}{
		{name: "valid", mutate: func(*Scan) {}},
		{name: "zero range_min", mutate: func(s *Scan) { s.RangeMin = 0 }},
		{
			name:    "negative range_min",
			mutate:  func(s *Scan) { s.RangeMin = -0.5 },
			wantErr: "range_min -0.5 is negative",
		},
		{
			name:    "range_max not above range_min",
			mutate:  func(s *Scan) { s.RangeMax = s.RangeMin },
			wantErr: "not above range_min",
		},
		{
			name:    "infinite range_max",
			mutate:  func(s *Scan) { s.RangeMax = math.Inf(1) },
			wantErr: "scan range_max is not finite",
		},
		{
			// Several bad fields always report the first in header order.
			name: "first non-finite field wins",
			mutate: func(s *Scan) {
				s.RangeMax = math.NaN()
				s.RangeMin = math.NaN()
				s.AngleIncrement = math.Inf(-1)
				s.AngleMax = math.NaN()
			},
			wantErr: "scan angle_max is not finite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := singleRay(2)
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			for i := 0; i < 20; i++ {
				err = s.Validate()
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErr)
				}
			}
		})
	}
}
