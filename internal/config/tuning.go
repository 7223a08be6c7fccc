package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and runtime updates. Fields omitted from
// the JSON keep their Get* defaults, so partial configs are safe.
type TuningConfig struct {
	// Acquisition filter params
	FilterFrames *int     `json:"filter_frames,omitempty"`
	FilterSigma  *float64 `json:"filter_sigma,omitempty"`

	// Synthetic sensor params
	SyntheticWidth          *int     `json:"synthetic_width,omitempty"`
	SyntheticHeight         *int     `json:"synthetic_height,omitempty"`
	SyntheticDepthMin       *float64 `json:"synthetic_depth_min,omitempty"`
	SyntheticDepthMax       *float64 `json:"synthetic_depth_max,omitempty"`
	SyntheticCorners        *bool    `json:"synthetic_corners,omitempty"`
	SyntheticPoints         *int     `json:"synthetic_points,omitempty"`
	SyntheticPointsDistance *float64 `json:"synthetic_points_distance,omitempty"`
	SyntheticAlteration     *float64 `json:"synthetic_alteration,omitempty"`
	SyntheticSeed           *int64   `json:"synthetic_seed,omitempty"`

	// Topography params
	Colormap    *string  `json:"colormap,omitempty"`
	ContourStep *float64 `json:"contour_step,omitempty"`

	// Volume lookup params
	MaskThreshold     *float64 `json:"mask_threshold,omitempty"`
	ContourSteps      *int     `json:"contour_steps,omitempty"`
	ReservoirContours *int     `json:"reservoir_contours,omitempty"`

	// Engine params
	MaxConsecutiveErrors *int `json:"max_consecutive_errors,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FilterFrames != nil && *c.FilterFrames < 1 {
		return fmt.Errorf("filter_frames must be at least 1, got %d", *c.FilterFrames)
	}
	if c.FilterSigma != nil && *c.FilterSigma < 0 {
		return fmt.Errorf("filter_sigma must be non-negative, got %f", *c.FilterSigma)
	}
	if c.SyntheticWidth != nil && *c.SyntheticWidth < 2 {
		return fmt.Errorf("synthetic_width must be at least 2, got %d", *c.SyntheticWidth)
	}
	if c.SyntheticHeight != nil && *c.SyntheticHeight < 2 {
		return fmt.Errorf("synthetic_height must be at least 2, got %d", *c.SyntheticHeight)
	}
	if c.SyntheticDepthMin != nil && c.SyntheticDepthMax != nil && *c.SyntheticDepthMax <= *c.SyntheticDepthMin {
		return fmt.Errorf("synthetic_depth_max (%f) must exceed synthetic_depth_min (%f)",
			*c.SyntheticDepthMax, *c.SyntheticDepthMin)
	}
	if c.SyntheticPoints != nil && *c.SyntheticPoints < 0 {
		return fmt.Errorf("synthetic_points must be non-negative, got %d", *c.SyntheticPoints)
	}
	if c.SyntheticPointsDistance != nil {
		if *c.SyntheticPointsDistance < 0 || *c.SyntheticPointsDistance > 1 {
			return fmt.Errorf("synthetic_points_distance must be between 0 and 1, got %f", *c.SyntheticPointsDistance)
		}
	}
	if c.SyntheticAlteration != nil {
		if *c.SyntheticAlteration < 0 || *c.SyntheticAlteration > 1 {
			return fmt.Errorf("synthetic_alteration must be between 0 and 1, got %f", *c.SyntheticAlteration)
		}
	}
	if c.MaskThreshold != nil {
		if *c.MaskThreshold < 0 || *c.MaskThreshold > 1 {
			return fmt.Errorf("mask_threshold must be between 0 and 1, got %f", *c.MaskThreshold)
		}
	}
	if c.ContourSteps != nil && *c.ContourSteps < 0 {
		return fmt.Errorf("contour_steps must be non-negative, got %d", *c.ContourSteps)
	}
	if c.ReservoirContours != nil && *c.ReservoirContours < 0 {
		return fmt.Errorf("reservoir_contours must be non-negative, got %d", *c.ReservoirContours)
	}
	if c.MaxConsecutiveErrors != nil && *c.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("max_consecutive_errors must be non-negative, got %d", *c.MaxConsecutiveErrors)
	}
	return nil
}

// GetFilterFrames returns the filter_frames value or the default.
func (c *TuningConfig) GetFilterFrames() int {
	if c.FilterFrames == nil {
		return 3
	}
	return *c.FilterFrames
}

// GetFilterSigma returns the filter_sigma value or the default.
func (c *TuningConfig) GetFilterSigma() float64 {
	if c.FilterSigma == nil {
		return 3.0
	}
	return *c.FilterSigma
}

// GetSyntheticWidth returns the synthetic_width value or the default.
func (c *TuningConfig) GetSyntheticWidth() int {
	if c.SyntheticWidth == nil {
		return 512
	}
	return *c.SyntheticWidth
}

// GetSyntheticHeight returns the synthetic_height value or the default.
func (c *TuningConfig) GetSyntheticHeight() int {
	if c.SyntheticHeight == nil {
		return 424
	}
	return *c.SyntheticHeight
}

// GetSyntheticDepthMin returns the synthetic_depth_min value or the default.
func (c *TuningConfig) GetSyntheticDepthMin() float64 {
	if c.SyntheticDepthMin == nil {
		return 1170
	}
	return *c.SyntheticDepthMin
}

// GetSyntheticDepthMax returns the synthetic_depth_max value or the default.
func (c *TuningConfig) GetSyntheticDepthMax() float64 {
	if c.SyntheticDepthMax == nil {
		return 1370
	}
	return *c.SyntheticDepthMax
}

// GetSyntheticCorners returns the synthetic_corners value or the default.
func (c *TuningConfig) GetSyntheticCorners() bool {
	if c.SyntheticCorners == nil {
		return true
	}
	return *c.SyntheticCorners
}

// GetSyntheticPoints returns the synthetic_points value or the default.
func (c *TuningConfig) GetSyntheticPoints() int {
	if c.SyntheticPoints == nil {
		return 4
	}
	return *c.SyntheticPoints
}

// GetSyntheticPointsDistance returns the synthetic_points_distance value or the default.
func (c *TuningConfig) GetSyntheticPointsDistance() float64 {
	if c.SyntheticPointsDistance == nil {
		return 0.3
	}
	return *c.SyntheticPointsDistance
}

// GetSyntheticAlteration returns the synthetic_alteration value or the default.
func (c *TuningConfig) GetSyntheticAlteration() float64 {
	if c.SyntheticAlteration == nil {
		return 0.1
	}
	return *c.SyntheticAlteration
}

// GetSyntheticSeed returns the synthetic_seed value or the default.
func (c *TuningConfig) GetSyntheticSeed() int64 {
	if c.SyntheticSeed == nil {
		return 0 // seed from the clock
	}
	return *c.SyntheticSeed
}

// GetColormap returns the colormap value or the default.
func (c *TuningConfig) GetColormap() string {
	if c.Colormap == nil {
		return "terrain"
	}
	return *c.Colormap
}

// GetContourStep returns the contour_step value or the default.
func (c *TuningConfig) GetContourStep() float64 {
	if c.ContourStep == nil {
		return 10.0
	}
	return *c.ContourStep
}

// GetMaskThreshold returns the mask_threshold value or the default.
func (c *TuningConfig) GetMaskThreshold() float64 {
	if c.MaskThreshold == nil {
		return 0.5
	}
	return *c.MaskThreshold
}

// GetContourSteps returns the contour_steps value or the default.
func (c *TuningConfig) GetContourSteps() int {
	if c.ContourSteps == nil {
		return 20
	}
	return *c.ContourSteps
}

// GetReservoirContours returns the reservoir_contours value or the default.
func (c *TuningConfig) GetReservoirContours() int {
	if c.ReservoirContours == nil {
		return 10
	}
	return *c.ReservoirContours
}

// GetMaxConsecutiveErrors returns the max_consecutive_errors value or the default.
func (c *TuningConfig) GetMaxConsecutiveErrors() int {
	if c.MaxConsecutiveErrors == nil {
		return 10
	}
	return *c.MaxConsecutiveErrors
}
