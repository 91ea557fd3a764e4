package occupancy

import "math"

// maxTraceLength bounds a single cast. Endpoints far enough apart to exceed
// it come from a corrupted pose or range and are treated as malformed.
const maxTraceLength = 1 << 20

// Trace rasterizes the segment from near to far in g's cell space. The path
// is ordered near to far and contains each cell of the digital line exactly
// once. An empty path means the cast was malformed (a non-finite endpoint
// or an absurd length) and the ray should be skipped. Cells outside g are
// still returned.
func Trace(g *Grid, near, far Point) CellPath {
	if !finite(near) || !finite(far) {
		return nil
	}
	from, to := g.WorldToCell(near), g.WorldToCell(far)
	if abs(to.X-from.X) > maxTraceLength || abs(to.Y-from.Y) > maxTraceLength {
		return nil
	}
	return TraceCells(from, to)
}

// TraceCells walks the integer grid line between two cells, covering all
// octants. Each step moves along exactly one axis, so the path holds every
// cell the ideal segment between the two cell centres passes through and
// has |dx|+|dy|+1 entries. Where the segment crosses a cell corner exactly,
// the x step is taken first.
func TraceCells(from, to Cell) CellPath {
	x, y := from.X, from.Y
	nx := abs(to.X - x)
	ny := abs(to.Y - y)
	sx := -1
	if x < to.X {
		sx = 1
	}
	sy := -1
	if y < to.Y {
		sy = 1
	}

	path := make(CellPath, 0, nx+ny+1)
	path = append(path, Cell{X: x, Y: y})
	for ix, iy := 0, 0; ix < nx || iy < ny; {
		// Compares the parametric distance to the next vertical and
		// horizontal cell boundary, scaled by 2*nx*ny.
		decision := (1+2*ix)*ny - (1+2*iy)*nx
		switch {
		case iy == ny, ix < nx && decision <= 0:
			x += sx
			ix++
		default:
			y += sy
			iy++
		}
		path = append(path, Cell{X: x, Y: y})
	}
	return path
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
