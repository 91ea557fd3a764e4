package occupancy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrid(t *testing.T, w, h int) *Grid {
	t.Helper()
	g, err := NewGrid(GridConfig{Width: w, Height: h, Resolution: 1, Scale: 1})
	require.NoError(t, err)
	return g
}

func TestNewGrid_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  GridConfig
	}{
		{"zero width", GridConfig{Width: 0, Height: 10, Resolution: 1}},
		{"negative height", GridConfig{Width: 10, Height: -1, Resolution: 1}},
		{"zero resolution", GridConfig{Width: 10, Height: 10}},
		{"nan resolution", GridConfig{Width: 10, Height: 10, Resolution: math.NaN()}},
		{"inf resolution", GridConfig{Width: 10, Height: 10, Resolution: math.Inf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGrid(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewGrid_ScaleRoundsUp(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(GridConfig{Width: 11, Height: 10, Resolution: 0.05, Scale: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width())
	assert.Equal(t, 2, g.Height())
	assert.Equal(t, 5, g.Scale())
	assert.InDelta(t, 0.25, g.CellSize(), 1e-12)
	assert.Equal(t, Cell{X: 3, Y: 2}, g.ExtentInCells())
	ext := g.Extent()
	assert.InDelta(t, 0.75, ext.X, 1e-12)
	assert.InDelta(t, 0.5, ext.Y, 1e-12)

	// Scale below one means native resolution.
	g, err = NewGrid(GridConfig{Width: 4, Height: 4, Resolution: 1, Scale: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Scale())
	assert.Equal(t, 4, g.Width())
}

func TestGrid_CellBounds(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 10, 10)

	s, err := g.Cell(0, 0)
	require.NoError(t, err)
	assert.Equal(t, Unknown, s)

	for _, c := range []Cell{{-1, 0}, {0, -1}, {10, 0}, {0, 10}, {100, 100}} {
		_, err := g.Cell(c.X, c.Y)
		assert.True(t, errors.Is(err, ErrOutOfBounds), "cell %v", c)
		err = g.SetCell(c.X, c.Y, Free)
		assert.True(t, errors.Is(err, ErrOutOfBounds), "cell %v", c)
		_, err = g.Apply(c.X, c.Y, Free)
		assert.True(t, errors.Is(err, ErrOutOfBounds), "cell %v", c)
	}

	require.NoError(t, g.SetCell(9, 9, Occupied))
	s, err = g.Cell(9, 9)
	require.NoError(t, err)
	assert.Equal(t, Occupied, s)

	assert.Error(t, g.SetCell(1, 1, CellState(7)))
}

func TestGrid_WorldToCell(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(GridConfig{Width: 100, Height: 100, Resolution: 0.05, Scale: 5, Origin: Point{X: -1, Y: -2}})
	require.NoError(t, err)

	cases := []struct {
		p    Point
		want Cell
	}{
		{Point{-1, -2}, Cell{0, 0}},
		{Point{-0.76, -1.76}, Cell{0, 0}},
		{Point{-0.75, -1.75}, Cell{1, 1}},
		{Point{0, 0}, Cell{4, 8}},
		{Point{-1.1, -2.1}, Cell{-1, -1}},
		{Point{100, 100}, Cell{404, 408}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, g.WorldToCell(tc.p), "point %v", tc.p)
	}

	nan := g.WorldToCell(Point{X: math.NaN(), Y: 0})
	assert.False(t, g.InBounds(nan.X, nan.Y))
}

func TestGrid_CellCenterRoundTrip(t *testing.T) {
	t.Parallel()
	g, err := NewGrid(GridConfig{Width: 20, Height: 20, Resolution: 0.5, Scale: 2, Origin: Point{X: 3, Y: -4}})
	require.NoError(t, err)
	for x := 0; x < g.Width(); x++ {
		for y := 0; y < g.Height(); y++ {
			c := Cell{X: x, Y: y}
			assert.Equal(t, c, g.WorldToCell(g.CellCenter(c)))
		}
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, next CellState
		want       CellState
		changed    bool
	}{
		{Unknown, Free, Free, true},
		{Unknown, Occupied, Occupied, true},
		{Free, Occupied, Occupied, true},
		{Free, Free, Free, false},
		{Occupied, Occupied, Occupied, false},
		{Occupied, Free, Occupied, false},
		{Occupied, Unknown, Occupied, false},
		{Free, Unknown, Free, false},
		{Unknown, Unknown, Unknown, false},
	}
	for _, tc := range cases {
		got, changed := Transition(tc.from, tc.next)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.next)
		assert.Equal(t, tc.changed, changed, "%s -> %s", tc.from, tc.next)
	}
}

func TestGrid_ApplyNeverRevertsOccupied(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 3, 3)

	changed, err := g.Apply(1, 1, Occupied)
	require.NoError(t, err)
	assert.True(t, changed)

	for _, next := range []CellState{Free, Unknown, Occupied} {
		changed, err := g.Apply(1, 1, next)
		require.NoError(t, err)
		assert.False(t, changed)
		s, _ := g.Cell(1, 1)
		assert.Equal(t, Occupied, s)
	}
}

func TestGrid_ClearCountsValues(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 4, 2)
	require.NoError(t, g.SetCell(0, 0, Free))
	require.NoError(t, g.SetCell(3, 1, Occupied))

	counts := g.Counts()
	assert.Equal(t, 6, counts[Unknown])
	assert.Equal(t, 1, counts[Free])
	assert.Equal(t, 1, counts[Occupied])

	vals := g.Values()
	require.Len(t, vals, 8)
	assert.Equal(t, 0.0, vals[0])
	assert.Equal(t, 1.0, vals[1*4+3])
	assert.Equal(t, 0.5, vals[1])

	g.Clear(Free)
	assert.Equal(t, 8, g.Counts()[Free])
}

func TestGrid_CloneIsDeep(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 5, 5)
	require.NoError(t, g.SetCell(2, 2, Free))

	c := g.Clone()
	assert.True(t, g.Equal(c))

	require.NoError(t, g.SetCell(2, 3, Occupied))
	assert.False(t, g.Equal(c))
	s, _ := c.Cell(2, 3)
	assert.Equal(t, Unknown, s)
}

func TestGrid_Restore(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 2, 2)

	require.NoError(t, g.Restore([]CellState{Free, Occupied, Unknown, Free}))
	s, _ := g.Cell(1, 0)
	assert.Equal(t, Occupied, s)

	assert.Error(t, g.Restore([]CellState{Free}))
	assert.Error(t, g.Restore([]CellState{Free, Free, Free, CellState(9)}))
}

func TestDeltaGrid(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t, 4, 3)
	d := NewDeltaGrid(g)

	assert.True(t, d.Mark(Cell{1, 2}))
	assert.True(t, d.Mark(Cell{1, 2}))
	assert.True(t, d.Mark(Cell{3, 0}))
	assert.False(t, d.Mark(Cell{4, 0}))
	assert.False(t, d.Mark(Cell{-1, 0}))

	assert.Equal(t, 2, d.Count())
	assert.True(t, d.IsMarked(Cell{1, 2}))
	assert.False(t, d.IsMarked(Cell{0, 0}))
	assert.Equal(t, []Cell{{3, 0}, {1, 2}}, d.Cells())

	c := d.Clone()
	d.Clear()
	assert.Equal(t, 0, d.Count())
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 1.0, c.Values()[2*4+1])
}

func TestCellStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "free", Free.String())
	assert.Equal(t, "occupied", Occupied.String())
	assert.Equal(t, "CellState(5)", CellState(5).String())
	assert.Equal(t, 0.5, Unknown.Value())
}
