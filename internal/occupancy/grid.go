// Package occupancy holds the tri-state occupancy grid, its change mask and
// the ray rasterizer used to project range readings into cell space.
package occupancy

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned by cell accessors for coordinates outside the grid.
var ErrOutOfBounds = errors.New("cell out of bounds")

// GridConfig describes the native map the grid is built from.
type GridConfig struct {
	// Width and Height are the native map dimensions in cells.
	Width  int
	Height int
	// Resolution is meters per native cell.
	Resolution float64
	// Scale is the integer downsampling factor. Values below 1 are treated as 1.
	Scale int
	// Origin is the world position of the lower-left corner of cell (0,0).
	Origin Point
}

// Grid is a fixed-size tri-state occupancy map. Dimensions, resolution and
// scale never change after NewGrid. Grid is not safe for concurrent use; the
// owner serialises writers and hands readers a Clone.
type Grid struct {
	width      int
	height     int
	resolution float64
	scale      int
	origin     Point
	cells      []CellState
}

// NewGrid allocates an all-Unknown grid. Scaled dimensions round up so the
// whole native extent stays covered.
func NewGrid(cfg GridConfig) (*Grid, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Resolution <= 0 || math.IsNaN(cfg.Resolution) || math.IsInf(cfg.Resolution, 0) {
		return nil, fmt.Errorf("invalid grid resolution %v", cfg.Resolution)
	}
	scale := cfg.Scale
	if scale < 1 {
		scale = 1
	}
	w := (cfg.Width + scale - 1) / scale
	h := (cfg.Height + scale - 1) / scale
	return &Grid{
		width:      w,
		height:     h,
		resolution: cfg.Resolution,
		scale:      scale,
		origin:     cfg.Origin,
		cells:      make([]CellState, w*h),
	}, nil
}

// Width returns the number of columns after scaling.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows after scaling.
func (g *Grid) Height() int { return g.height }

// Resolution returns meters per native cell.
func (g *Grid) Resolution() float64 { return g.resolution }

// Scale returns the downsampling factor.
func (g *Grid) Scale() int { return g.scale }

// Origin returns the world position of cell (0,0).
func (g *Grid) Origin() Point { return g.origin }

// CellSize returns the edge length of one scaled cell in meters.
func (g *Grid) CellSize() float64 { return g.resolution * float64(g.scale) }

// ExtentInCells returns the scaled dimensions.
func (g *Grid) ExtentInCells() Cell { return Cell{X: g.width, Y: g.height} }

// Extent returns the world size covered by the grid in meters.
func (g *Grid) Extent() Point {
	size := g.CellSize()
	return Point{X: float64(g.width) * size, Y: float64(g.height) * size}
}

// InBounds reports whether (x, y) addresses a cell of the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

func (g *Grid) index(x, y int) (int, error) {
	if !g.InBounds(x, y) {
		return 0, fmt.Errorf("(%d,%d) outside %dx%d: %w", x, y, g.width, g.height, ErrOutOfBounds)
	}
	return y*g.width + x, nil
}

// Cell returns the state at (x, y) or an error wrapping ErrOutOfBounds.
func (g *Grid) Cell(x, y int) (CellState, error) {
	i, err := g.index(x, y)
	if err != nil {
		return Unknown, err
	}
	return g.cells[i], nil
}

// SetCell overwrites the state at (x, y) without applying the transition
// rules. It is intended for restores and tests; ingestion uses Apply.
func (g *Grid) SetCell(x, y int, state CellState) error {
	i, err := g.index(x, y)
	if err != nil {
		return err
	}
	if !state.Valid() {
		return fmt.Errorf("invalid cell state %d", uint8(state))
	}
	g.cells[i] = state
	return nil
}

// Apply moves the cell at (x, y) towards next using Transition and reports
// whether the stored state changed.
func (g *Grid) Apply(x, y int, next CellState) (bool, error) {
	i, err := g.index(x, y)
	if err != nil {
		return false, err
	}
	updated, changed := Transition(g.cells[i], next)
	if changed {
		g.cells[i] = updated
	}
	return changed, nil
}

// WorldToCell maps a world point to its containing cell. The result may be
// outside the grid; non-finite inputs yield a cell that fails InBounds.
func (g *Grid) WorldToCell(p Point) Cell {
	size := g.CellSize()
	return Cell{
		X: floorToInt((p.X - g.origin.X) / size),
		Y: floorToInt((p.Y - g.origin.Y) / size),
	}
}

// CellCenter returns the world position of the centre of cell c.
func (g *Grid) CellCenter(c Cell) Point {
	size := g.CellSize()
	return Point{
		X: g.origin.X + (float64(c.X)+0.5)*size,
		Y: g.origin.Y + (float64(c.Y)+0.5)*size,
	}
}

// Clear resets every cell to state.
func (g *Grid) Clear(state CellState) {
	for i := range g.cells {
		g.cells[i] = state
	}
}

// Counts returns the number of cells in each state.
func (g *Grid) Counts() map[CellState]int {
	counts := map[CellState]int{Unknown: 0, Free: 0, Occupied: 0}
	for _, c := range g.cells {
		counts[c]++
	}
	return counts
}

// Values returns the scalar occupancy of every cell in row-major order
// (index y*Width()+x).
func (g *Grid) Values() []float64 {
	out := make([]float64, len(g.cells))
	for i, c := range g.cells {
		out[i] = c.Value()
	}
	return out
}

// States returns a copy of the raw cell states in row-major order.
func (g *Grid) States() []CellState {
	out := make([]CellState, len(g.cells))
	copy(out, g.cells)
	return out
}

// Restore replaces every cell from a row-major state slice of matching size.
func (g *Grid) Restore(states []CellState) error {
	if len(states) != len(g.cells) {
		return fmt.Errorf("restore size mismatch: got %d cells, want %d", len(states), len(g.cells))
	}
	for i, s := range states {
		if !s.Valid() {
			return fmt.Errorf("invalid cell state %d at index %d", uint8(s), i)
		}
	}
	copy(g.cells, states)
	return nil
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	c := *g
	c.cells = make([]CellState, len(g.cells))
	copy(c.cells, g.cells)
	return &c
}

// Equal reports whether both grids have the same geometry and cell states.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.width != o.width || g.height != o.height || g.scale != o.scale ||
		g.resolution != o.resolution || g.origin != o.origin {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

func floorToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MinInt32
	}
	f := math.Floor(v)
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}
