package bootstrap

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/gridmapper/internal/occupancy"
	"github.com/banshee-data/gridmapper/internal/security"
)

// map_server trinary pixel values.
const (
	pixelOccupied = 0
	pixelUnknown  = 205
	pixelFree     = 254

	defaultOccupiedThresh = 0.65
	defaultFreeThresh     = 0.196
)

// MapYAML is the map_server metadata file.
type MapYAML struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
	Mode           string    `yaml:"mode,omitempty"`
}

// LoadYAML reads map geometry from a map_server YAML file. The image path
// is resolved relative to the YAML file and only its header is decoded.
func LoadYAML(path string) (MapInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MapInfo{}, fmt.Errorf("read map yaml: %w", err)
	}
	var meta MapYAML
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return MapInfo{}, fmt.Errorf("parse map yaml %s: %w", path, err)
	}
	if meta.Image == "" {
		return MapInfo{}, fmt.Errorf("map yaml %s has no image", path)
	}
	if len(meta.Origin) < 2 {
		return MapInfo{}, fmt.Errorf("map yaml %s origin needs at least x and y", path)
	}

	imgPath := meta.Image
	if !filepath.IsAbs(imgPath) {
		imgPath = filepath.Join(filepath.Dir(path), imgPath)
	}
	f, err := os.Open(imgPath)
	if err != nil {
		return MapInfo{}, fmt.Errorf("open map image: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return MapInfo{}, fmt.Errorf("decode map image %s: %w", imgPath, err)
	}

	info := MapInfo{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Resolution: meta.Resolution,
		OriginX:    meta.Origin[0],
		OriginY:    meta.Origin[1],
	}
	if err := info.Validate(); err != nil {
		return MapInfo{}, err
	}
	return info, nil
}

// ExportYAML writes grid as <name>.png and <name>.yaml in dir, one pixel
// per grid cell. The image's top row is the grid's highest y row. name is
// sanitised before use and the returned path is the YAML file.
func ExportYAML(dir, name string, grid *occupancy.Grid) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name = security.SanitizeFilename(name)
	if err := security.WithinDir(filepath.Join(dir, name+".yaml"), dir); err != nil {
		return "", err
	}

	w, h := grid.Width(), grid.Height()
	img := image.NewGray(image.Rect(0, 0, w, h))
	states := grid.States()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, h-1-y, color.Gray{Y: pixelFor(states[y*w+x])})
		}
	}

	pngName := name + ".png"
	pf, err := os.Create(filepath.Join(dir, pngName))
	if err != nil {
		return "", fmt.Errorf("create map image: %w", err)
	}
	if err := png.Encode(pf, img); err != nil {
		pf.Close()
		return "", fmt.Errorf("encode map image: %w", err)
	}
	if err := pf.Close(); err != nil {
		return "", err
	}

	origin := grid.Origin()
	meta := MapYAML{
		Image:          pngName,
		Resolution:     grid.CellSize(),
		Origin:         []float64{origin.X, origin.Y, 0},
		OccupiedThresh: defaultOccupiedThresh,
		FreeThresh:     defaultFreeThresh,
		Mode:           "trinary",
	}
	out, err := yaml.Marshal(&meta)
	if err != nil {
		return "", fmt.Errorf("encode map yaml: %w", err)
	}
	yamlPath := filepath.Join(dir, name+".yaml")
	if err := os.WriteFile(yamlPath, out, 0o644); err != nil {
		return "", fmt.Errorf("write map yaml: %w", err)
	}
	return yamlPath, nil
}

func pixelFor(s occupancy.CellState) uint8 {
	switch s {
	case occupancy.Occupied:
		return pixelOccupied
	case occupancy.Free:
		return pixelFree
	default:
		return pixelUnknown
	}
}
