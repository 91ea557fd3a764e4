package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gridmapper/internal/httputil"
	"github.com/banshee-data/gridmapper/internal/occupancy"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxHeatmapSide bounds the cells per axis sent to the browser.
const maxHeatmapSide = 200

// handleHeatmap renders the grid as an interactive go-echarts heat map.
// Large grids are downsampled by taking the strongest state in each
// stride x stride block; ?stride= overrides the automatic choice.
func (ws *WebServer) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	grid := ws.node.GridSnapshot()

	stride := heatmapStride(grid.Width(), grid.Height())
	if raw := r.URL.Query().Get("stride"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			httputil.BadRequest(w, fmt.Sprintf("invalid stride %q", raw))
			return
		}
		stride = v
	}

	cols := (grid.Width() + stride - 1) / stride
	rows := (grid.Height() + stride - 1) / stride
	xs := make([]string, cols)
	for c := range xs {
		xs[c] = strconv.FormatFloat(grid.CellCenter(occupancy.Cell{X: c * stride}).X, 'f', 2, 64)
	}
	ys := make([]string, rows)
	for rIdx := range ys {
		ys[rIdx] = strconv.FormatFloat(grid.CellCenter(occupancy.Cell{Y: rIdx * stride}).Y, 'f', 2, 64)
	}

	data := make([]opts.HeatMapData, 0, cols*rows)
	for rIdx := 0; rIdx < rows; rIdx++ {
		for c := 0; c < cols; c++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, rIdx, blockValue(grid, c*stride, rIdx*stride, stride)}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Grid", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Grid", Subtitle: fmt.Sprintf("%dx%d cells, %.3fm/cell, stride=%d", grid.Width(), grid.Height(), grid.CellSize(), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Y (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: []string{"#f5f5f5", "#808080", "#101010"}},
		}),
	)
	hm.SetXAxis(xs).AddSeries("occupancy", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func heatmapStride(width, height int) int {
	side := max(width, height)
	return max(1, (side+maxHeatmapSide-1)/maxHeatmapSide)
}

// blockValue is the largest cell value in the block at (x0, y0), so a
// single occupied cell stays visible after downsampling.
func blockValue(g *occupancy.Grid, x0, y0, stride int) float64 {
	best := 0.0
	for y := y0; y < y0+stride && y < g.Height(); y++ {
		for x := x0; x < x0+stride && x < g.Width(); x++ {
			s, err := g.Cell(x, y)
			if err != nil {
				continue
			}
			if v := s.Value(); v > best {
				best = v
			}
		}
	}
	return best
}
