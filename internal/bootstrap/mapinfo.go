// Package bootstrap obtains the native map geometry the occupancy grid is
// sized from, either from a map service over HTTP or from a map_server
// style YAML file, and exports finished grids in the same YAML format.
package bootstrap

import (
	"fmt"
	"math"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

// MapInfo is the native map geometry.
type MapInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"`
	OriginX    float64 `json:"origin_x"`
	OriginY    float64 `json:"origin_y"`
}

// Validate rejects geometry no grid can be built from.
func (m MapInfo) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid map dimensions %dx%d", m.Width, m.Height)
	}
	if !(m.Resolution > 0) || math.IsInf(m.Resolution, 0) {
		return fmt.Errorf("invalid map resolution %v", m.Resolution)
	}
	if math.IsNaN(m.OriginX) || math.IsInf(m.OriginX, 0) || math.IsNaN(m.OriginY) || math.IsInf(m.OriginY, 0) {
		return fmt.Errorf("invalid map origin (%v, %v)", m.OriginX, m.OriginY)
	}
	return nil
}

// GridConfig sizes a grid from the map at the given plan scale.
func (m MapInfo) GridConfig(scale int) occupancy.GridConfig {
	return occupancy.GridConfig{
		Width:      m.Width,
		Height:     m.Height,
		Resolution: m.Resolution,
		Scale:      scale,
		Origin:     occupancy.Point{X: m.OriginX, Y: m.OriginY},
	}
}
