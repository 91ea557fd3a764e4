package occupancy

// DeltaGrid is a {0,1} mask with the shape of a Grid marking cells that
// changed since the last Clear.
type DeltaGrid struct {
	width  int
	height int
	marks  []uint8
}

// NewDeltaGrid returns an empty mask shaped like g.
func NewDeltaGrid(g *Grid) *DeltaGrid {
	return &DeltaGrid{
		width:  g.width,
		height: g.height,
		marks:  make([]uint8, g.width*g.height),
	}
}

func (d *DeltaGrid) Width() int  { return d.width }
func (d *DeltaGrid) Height() int { return d.height }

// Mark flags c as changed. Cells outside the mask are ignored and reported
// with false.
func (d *DeltaGrid) Mark(c Cell) bool {
	if c.X < 0 || c.X >= d.width || c.Y < 0 || c.Y >= d.height {
		return false
	}
	d.marks[c.Y*d.width+c.X] = 1
	return true
}

// IsMarked reports whether c has been flagged since the last Clear.
func (d *DeltaGrid) IsMarked(c Cell) bool {
	if c.X < 0 || c.X >= d.width || c.Y < 0 || c.Y >= d.height {
		return false
	}
	return d.marks[c.Y*d.width+c.X] == 1
}

// Clear resets every flag to zero.
func (d *DeltaGrid) Clear() {
	for i := range d.marks {
		d.marks[i] = 0
	}
}

// Count returns the number of flagged cells.
func (d *DeltaGrid) Count() int {
	n := 0
	for _, m := range d.marks {
		n += int(m)
	}
	return n
}

// Cells lists flagged cells in row-major order.
func (d *DeltaGrid) Cells() []Cell {
	var out []Cell
	for i, m := range d.marks {
		if m == 1 {
			out = append(out, Cell{X: i % d.width, Y: i / d.width})
		}
	}
	return out
}

// Values returns the mask as 0/1 floats in row-major order.
func (d *DeltaGrid) Values() []float64 {
	out := make([]float64, len(d.marks))
	for i, m := range d.marks {
		out[i] = float64(m)
	}
	return out
}

// Clone returns a deep copy.
func (d *DeltaGrid) Clone() *DeltaGrid {
	c := *d
	c.marks = make([]uint8, len(d.marks))
	copy(c.marks, d.marks)
	return &c
}
