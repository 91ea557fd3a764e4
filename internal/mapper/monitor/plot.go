// Package monitor renders the occupancy grid for operators: PNG heat maps
// written on every visualisation tick and an HTTP status and control
// surface.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gridmapper/internal/occupancy"
)

const (
	GridPlotName  = "grid.png"
	DeltaPlotName = "delta.png"

	// pngDPI is the resolution gonum/plot renders PNGs at.
	pngDPI = 96
)

var (
	colorFree     = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	colorUnknown  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	colorOccupied = color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
	colorChanged  = color.RGBA{R: 0xe0, G: 0x40, B: 0x20, A: 0xff}
)

// fixedPalette maps heat map values onto an explicit colour list.
type fixedPalette []color.Color

func (p fixedPalette) Colors() []color.Color { return p }

// cellGrid adapts a row-major value slice to plotter.GridXYZ, placing each
// value at its cell centre in world metres.
type cellGrid struct {
	values   *mat.Dense
	origin   occupancy.Point
	cellSize float64
}

func newCellGrid(width, height int, values []float64, origin occupancy.Point, cellSize float64) *cellGrid {
	return &cellGrid{
		values:   mat.NewDense(height, width, values),
		origin:   origin,
		cellSize: cellSize,
	}
}

func (g *cellGrid) Dims() (c, r int) {
	r, c = g.values.Dims()
	return c, r
}

func (g *cellGrid) Z(c, r int) float64 { return g.values.At(r, c) }
func (g *cellGrid) X(c int) float64    { return g.origin.X + (float64(c)+0.5)*g.cellSize }
func (g *cellGrid) Y(r int) float64    { return g.origin.Y + (float64(r)+0.5)*g.cellSize }

// PlotDrawer implements mapper.Drawer by saving the grid and the show delta
// as PNG heat maps in a directory.
type PlotDrawer struct {
	dir          string
	windowHeight int
}

// NewPlotDrawer creates dir if needed. windowHeight is the image height in
// pixels; the width follows the grid's aspect ratio.
func NewPlotDrawer(dir string, windowHeight int) (*PlotDrawer, error) {
	if windowHeight < 16 {
		return nil, fmt.Errorf("window height %d too small", windowHeight)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	return &PlotDrawer{dir: dir, windowHeight: windowHeight}, nil
}

// Dir is where plots are written.
func (d *PlotDrawer) Dir() string { return d.dir }

// Draw renders both images. The grid and delta are not retained.
func (d *PlotDrawer) Draw(grid *occupancy.Grid, delta *occupancy.DeltaGrid) error {
	if grid.Width() < 2 || grid.Height() < 2 {
		return errors.New("grid too small to plot")
	}
	w, h := d.imageSize(grid.Width(), grid.Height())

	gp, err := d.heatMap("Occupancy", grid, grid.Values(), fixedPalette{colorFree, colorUnknown, colorOccupied})
	if err != nil {
		return err
	}
	if err := gp.Save(w, h, filepath.Join(d.dir, GridPlotName)); err != nil {
		return fmt.Errorf("save grid plot: %w", err)
	}

	if delta == nil {
		delta = occupancy.NewDeltaGrid(grid)
	}
	dp, err := d.heatMap(fmt.Sprintf("Changed cells (%d)", delta.Count()), grid, delta.Values(), fixedPalette{colorFree, colorChanged})
	if err != nil {
		return err
	}
	if err := dp.Save(w, h, filepath.Join(d.dir, DeltaPlotName)); err != nil {
		return fmt.Errorf("save delta plot: %w", err)
	}
	return nil
}

func (d *PlotDrawer) imageSize(cols, rows int) (vg.Length, vg.Length) {
	px := func(n float64) vg.Length { return vg.Length(n) * vg.Inch / pngDPI }
	height := float64(d.windowHeight)
	width := height * float64(cols) / float64(rows)
	if width < 16 {
		width = 16
	}
	return px(width), px(height)
}

func (d *PlotDrawer) heatMap(title string, grid *occupancy.Grid, values []float64, pal fixedPalette) (*plot.Plot, error) {
	if len(values) != grid.Width()*grid.Height() {
		return nil, fmt.Errorf("%d values for a %dx%d grid", len(values), grid.Width(), grid.Height())
	}
	hm := plotter.NewHeatMap(newCellGrid(grid.Width(), grid.Height(), values, grid.Origin(), grid.CellSize()), pal)
	hm.Min, hm.Max = 0, 1

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(hm)
	return p, nil
}
