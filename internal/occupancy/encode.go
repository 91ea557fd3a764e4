package occupancy

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
)

// gridBlob is the gob payload for a serialized grid.
type gridBlob struct {
	Width      int
	Height     int
	Scale      int
	Resolution float64
	Origin     Point
	States     []byte
}

// EncodeGrid serializes g with gob and compresses the result with gzip.
func EncodeGrid(g *Grid) ([]byte, error) {
	blob := gridBlob{
		Width:      g.width,
		Height:     g.height,
		Scale:      g.scale,
		Resolution: g.resolution,
		Origin:     g.origin,
		States:     make([]byte, len(g.cells)),
	}
	for i, c := range g.cells {
		blob.States[i] = byte(c)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&blob); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeGrid reverses EncodeGrid.
func DecodeGrid(data []byte) (*Grid, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var blob gridBlob
	if err := gob.NewDecoder(gz).Decode(&blob); err != nil {
		return nil, fmt.Errorf("failed to decode grid: %w", err)
	}
	if blob.Width <= 0 || blob.Height <= 0 || blob.Scale < 1 || blob.Resolution <= 0 {
		return nil, fmt.Errorf("invalid grid geometry %dx%d scale=%d res=%v",
			blob.Width, blob.Height, blob.Scale, blob.Resolution)
	}
	if len(blob.States) != blob.Width*blob.Height {
		return nil, fmt.Errorf("grid blob has %d cells, want %d", len(blob.States), blob.Width*blob.Height)
	}

	g := &Grid{
		width:      blob.Width,
		height:     blob.Height,
		scale:      blob.Scale,
		resolution: blob.Resolution,
		origin:     blob.Origin,
		cells:      make([]CellState, len(blob.States)),
	}
	for i, b := range blob.States {
		s := CellState(b)
		if !s.Valid() {
			return nil, fmt.Errorf("invalid cell state %d at index %d", b, i)
		}
		g.cells[i] = s
	}
	return g, nil
}
