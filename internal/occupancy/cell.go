package occupancy

import "fmt"

// CellState is the tri-state classification of a grid cell.
type CellState uint8

const (
	Unknown CellState = iota
	Free
	Occupied
)

// String returns a lowercase name for the state.
func (s CellState) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// Value returns the scalar occupancy used by planners and renderers:
// 0.5 for unknown, 0 for free and 1 for occupied.
func (s CellState) Value() float64 {
	switch s {
	case Free:
		return 0
	case Occupied:
		return 1
	default:
		return 0.5
	}
}

// Valid reports whether s is one of the three defined states.
func (s CellState) Valid() bool {
	return s <= Occupied
}

// Transition returns the state a cell moves to when observed as next.
// Legal moves are Unknown->Free, Unknown->Occupied and Free->Occupied.
// Every other combination leaves the cell unchanged, so an occupied cell
// never reverts.
func Transition(current, next CellState) (CellState, bool) {
	switch {
	case current == Unknown && (next == Free || next == Occupied):
		return next, true
	case current == Free && next == Occupied:
		return Occupied, true
	default:
		return current, false
	}
}

// Cell is an integer grid coordinate. It may lie outside any particular grid.
type Cell struct {
	X, Y int
}

// Point is a position in world coordinates (meters).
type Point struct {
	X, Y float64
}

// CellPath is an ordered run of cells produced for a single ray.
type CellPath []Cell

// Last returns the final cell of the path. ok is false for an empty path.
func (p CellPath) Last() (Cell, bool) {
	if len(p) == 0 {
		return Cell{}, false
	}
	return p[len(p)-1], true
}
