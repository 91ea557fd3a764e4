package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gridmapper/internal/kinematics"
)

// DefaultConfigPath is the conventional location of the mapper config file.
const DefaultConfigPath = "config/mapper.json"

// MapperConfig holds the mapper's tunables. Every field is optional; the
// Get* methods supply defaults for anything omitted, so partial files are safe.
type MapperConfig struct {
	// Grid
	PlanScale *int `json:"plan_scale,omitempty"`

	// Visualisation
	MaximumWindowHeightInPixels *int    `json:"maximum_window_height_in_pixels,omitempty"`
	VisualisationInterval       *string `json:"visualisation_interval,omitempty"` // duration string like "2s"
	PlotOutputDir               *string `json:"plot_output_dir,omitempty"`

	// Mapping
	StartWithMappingEnabled *bool    `json:"start_with_mapping_enabled,omitempty"`
	MaxLinearSpeed          *float64 `json:"max_linear_speed,omitempty"`
	AngularVelocityEpsilon  *float64 `json:"angular_velocity_epsilon,omitempty"`
	MinimumRange            *float64 `json:"minimum_range,omitempty"`

	// Persistence
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "60s"
	FlushEnabled  *bool   `json:"flush_enabled,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultMapperConfig returns a config with every field populated.
func DefaultMapperConfig() *MapperConfig {
	return &MapperConfig{
		PlanScale:                   ptrInt(5),
		MaximumWindowHeightInPixels: ptrInt(600),
		VisualisationInterval:       ptrString("2s"),
		PlotOutputDir:               ptrString("plots"),
		StartWithMappingEnabled:     ptrBool(true),
		MaxLinearSpeed:              ptrFloat64(kinematics.DefaultMaxLinearSpeed),
		AngularVelocityEpsilon:      ptrFloat64(kinematics.DefaultAngularEpsilon),
		MinimumRange:                ptrFloat64(0),
		FlushInterval:               ptrString("60s"),
		FlushEnabled:                ptrBool(false),
	}
}

// LoadMapperConfig reads a JSON config. The path must have a .json extension
// and the file must be under 1MB.
func LoadMapperConfig(path string) (*MapperConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &MapperConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *MapperConfig) Validate() error {
	if c.PlanScale != nil && *c.PlanScale < 1 {
		return fmt.Errorf("plan_scale must be at least 1, got %d", *c.PlanScale)
	}
	if c.MaximumWindowHeightInPixels != nil && *c.MaximumWindowHeightInPixels < 16 {
		return fmt.Errorf("maximum_window_height_in_pixels must be at least 16, got %d", *c.MaximumWindowHeightInPixels)
	}
	if c.MaxLinearSpeed != nil && *c.MaxLinearSpeed <= 0 {
		return fmt.Errorf("max_linear_speed must be positive, got %f", *c.MaxLinearSpeed)
	}
	if c.AngularVelocityEpsilon != nil && *c.AngularVelocityEpsilon <= 0 {
		return fmt.Errorf("angular_velocity_epsilon must be positive, got %g", *c.AngularVelocityEpsilon)
	}
	if c.MinimumRange != nil && *c.MinimumRange < 0 {
		return fmt.Errorf("minimum_range must be non-negative, got %f", *c.MinimumRange)
	}
	for name, v := range map[string]*string{
		"visualisation_interval": c.VisualisationInterval,
		"flush_interval":         c.FlushInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	return nil
}

// GetPlanScale returns the downsampling factor applied to the native map.
func (c *MapperConfig) GetPlanScale() int {
	if c.PlanScale == nil {
		return 5
	}
	return *c.PlanScale
}

func (c *MapperConfig) GetMaximumWindowHeightInPixels() int {
	if c.MaximumWindowHeightInPixels == nil {
		return 600
	}
	return *c.MaximumWindowHeightInPixels
}

// GetVisualisationInterval returns the redraw poll period.
func (c *MapperConfig) GetVisualisationInterval() time.Duration {
	return parseDurationOr(c.VisualisationInterval, 2*time.Second)
}

func (c *MapperConfig) GetPlotOutputDir() string {
	if c.PlotOutputDir == nil || *c.PlotOutputDir == "" {
		return "plots"
	}
	return *c.PlotOutputDir
}

func (c *MapperConfig) GetStartWithMappingEnabled() bool {
	if c.StartWithMappingEnabled == nil {
		return true
	}
	return *c.StartWithMappingEnabled
}

func (c *MapperConfig) GetMaxLinearSpeed() float64 {
	if c.MaxLinearSpeed == nil {
		return kinematics.DefaultMaxLinearSpeed
	}
	return *c.MaxLinearSpeed
}

func (c *MapperConfig) GetAngularVelocityEpsilon() float64 {
	if c.AngularVelocityEpsilon == nil {
		return kinematics.DefaultAngularEpsilon
	}
	return *c.AngularVelocityEpsilon
}

// GetMinimumRange returns the floor applied on top of each scan's range_min.
func (c *MapperConfig) GetMinimumRange() float64 {
	if c.MinimumRange == nil {
		return 0
	}
	return *c.MinimumRange
}

func (c *MapperConfig) GetFlushInterval() time.Duration {
	return parseDurationOr(c.FlushInterval, 60*time.Second)
}

func (c *MapperConfig) GetFlushEnabled() bool {
	if c.FlushEnabled == nil {
		return false
	}
	return *c.FlushEnabled
}

// PredictorConfig converts the kinematic thresholds.
func (c *MapperConfig) PredictorConfig() kinematics.PredictorConfig {
	return kinematics.PredictorConfig{
		AngularEpsilon: c.GetAngularVelocityEpsilon(),
		MaxLinearSpeed: c.GetMaxLinearSpeed(),
	}
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
