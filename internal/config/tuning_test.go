package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "filter_frames": 5,
  "filter_sigma": 1.5,
  "synthetic_points": 8,
  "synthetic_alteration": 0.25,
  "colormap": "spectral",
  "mask_threshold": 0.3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.FilterFrames == nil || *cfg.FilterFrames != 5 {
		t.Errorf("Expected FilterFrames 5, got %v", cfg.FilterFrames)
	}
	if cfg.FilterSigma == nil || *cfg.FilterSigma != 1.5 {
		t.Errorf("Expected FilterSigma 1.5, got %v", cfg.FilterSigma)
	}
	if cfg.SyntheticPoints == nil || *cfg.SyntheticPoints != 8 {
		t.Errorf("Expected SyntheticPoints 8, got %v", cfg.SyntheticPoints)
	}
	if cfg.SyntheticAlteration == nil || *cfg.SyntheticAlteration != 0.25 {
		t.Errorf("Expected SyntheticAlteration 0.25, got %v", cfg.SyntheticAlteration)
	}
	if cfg.Colormap == nil || *cfg.Colormap != "spectral" {
		t.Errorf("Expected Colormap 'spectral', got %v", cfg.Colormap)
	}
	if cfg.MaskThreshold == nil || *cfg.MaskThreshold != 0.3 {
		t.Errorf("Expected MaskThreshold 0.3, got %v", cfg.MaskThreshold)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "filter_frames": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "full config is valid",
			cfg: &TuningConfig{
				FilterFrames:        ptrInt(3),
				FilterSigma:         ptrFloat64(3),
				SyntheticAlteration: ptrFloat64(0.1),
				Colormap:            ptrString("terrain"),
				MaskThreshold:       ptrFloat64(0.5),
			},
			wantErr: false,
		},
		{
			name: "zero filter frames",
			cfg: &TuningConfig{
				FilterFrames: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "negative filter sigma",
			cfg: &TuningConfig{
				FilterSigma: ptrFloat64(-1),
			},
			wantErr: true,
		},
		{
			name: "points distance above 1",
			cfg: &TuningConfig{
				SyntheticPointsDistance: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "synthetic width below 2",
			cfg: &TuningConfig{
				SyntheticWidth: ptrInt(1),
			},
			wantErr: true,
		},
		{
			name: "inverted synthetic depth window",
			cfg: &TuningConfig{
				SyntheticDepthMin: ptrFloat64(1300),
				SyntheticDepthMax: ptrFloat64(1000),
			},
			wantErr: true,
		},
		{
			name: "synthetic depth min alone is valid",
			cfg: &TuningConfig{
				SyntheticDepthMin: ptrFloat64(900),
			},
			wantErr: false,
		},
		{
			name: "alteration below 0",
			cfg: &TuningConfig{
				SyntheticAlteration: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "mask threshold above 1",
			cfg: &TuningConfig{
				MaskThreshold: ptrFloat64(1.1),
			},
			wantErr: true,
		},
		{
			name: "negative contour steps",
			cfg: &TuningConfig{
				ContourSteps: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "negative max consecutive errors",
			cfg: &TuningConfig{
				MaxConsecutiveErrors: ptrInt(-1),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetFilterFrames() != 3 {
		t.Errorf("Expected 3, got %d", cfg.GetFilterFrames())
	}
	if cfg.GetColormap() != "terrain" {
		t.Errorf("Expected 'terrain', got %q", cfg.GetColormap())
	}
	if cfg.GetSyntheticWidth() != 512 || cfg.GetSyntheticHeight() != 424 {
		t.Errorf("Expected 512x424 synthetic resolution, got %dx%d",
			cfg.GetSyntheticWidth(), cfg.GetSyntheticHeight())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetFilterFrames() != 5 {
		t.Errorf("Expected 5, got %d", cfg.GetFilterFrames())
	}
	if cfg.GetSyntheticSeed() != 42 {
		t.Errorf("Expected seed 42, got %d", cfg.GetSyntheticSeed())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override the colormap; everything else should keep
	// defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "colormap": "spectral"
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetColormap() != "spectral" {
		t.Errorf("Expected overridden Colormap 'spectral', got %q", cfg.GetColormap())
	}
	// Default values should be preserved
	if cfg.GetFilterFrames() != 3 {
		t.Errorf("Expected default FilterFrames 3, got %d", cfg.GetFilterFrames())
	}
	if cfg.GetFilterSigma() != 3.0 {
		t.Errorf("Expected default FilterSigma 3.0, got %f", cfg.GetFilterSigma())
	}
	if cfg.GetMaskThreshold() != 0.5 {
		t.Errorf("Expected default MaskThreshold 0.5, got %f", cfg.GetMaskThreshold())
	}
	if cfg.GetMaxConsecutiveErrors() != 10 {
		t.Errorf("Expected default MaxConsecutiveErrors 10, got %d", cfg.GetMaxConsecutiveErrors())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadTuningConfigRejectsOutOfRangeValue(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad_value.json")

	badJSON := `{
  "mask_threshold": 2.0
}`
	if err := os.WriteFile(configPath, []byte(badJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected validation error for mask_threshold 2.0, got nil")
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := EmptyTuningConfig()

	if cfg.GetFilterFrames() != 3 {
		t.Errorf("GetFilterFrames() = %d, want 3", cfg.GetFilterFrames())
	}
	if cfg.GetFilterSigma() != 3.0 {
		t.Errorf("GetFilterSigma() = %f, want 3.0", cfg.GetFilterSigma())
	}
	if cfg.GetSyntheticWidth() != 512 {
		t.Errorf("GetSyntheticWidth() = %d, want 512", cfg.GetSyntheticWidth())
	}
	if cfg.GetSyntheticHeight() != 424 {
		t.Errorf("GetSyntheticHeight() = %d, want 424", cfg.GetSyntheticHeight())
	}
	if cfg.GetSyntheticDepthMin() != 1170 {
		t.Errorf("GetSyntheticDepthMin() = %f, want 1170", cfg.GetSyntheticDepthMin())
	}
	if cfg.GetSyntheticDepthMax() != 1370 {
		t.Errorf("GetSyntheticDepthMax() = %f, want 1370", cfg.GetSyntheticDepthMax())
	}
	if !cfg.GetSyntheticCorners() {
		t.Error("GetSyntheticCorners() = false, want true")
	}
	if cfg.GetSyntheticPoints() != 4 {
		t.Errorf("GetSyntheticPoints() = %d, want 4", cfg.GetSyntheticPoints())
	}
	if cfg.GetSyntheticPointsDistance() != 0.3 {
		t.Errorf("GetSyntheticPointsDistance() = %f, want 0.3", cfg.GetSyntheticPointsDistance())
	}
	if cfg.GetSyntheticAlteration() != 0.1 {
		t.Errorf("GetSyntheticAlteration() = %f, want 0.1", cfg.GetSyntheticAlteration())
	}
	if cfg.GetSyntheticSeed() != 0 {
		t.Errorf("GetSyntheticSeed() = %d, want 0", cfg.GetSyntheticSeed())
	}
	if cfg.GetColormap() != "terrain" {
		t.Errorf("GetColormap() = %q, want 'terrain'", cfg.GetColormap())
	}
	if cfg.GetContourStep() != 10.0 {
		t.Errorf("GetContourStep() = %f, want 10.0", cfg.GetContourStep())
	}
	if cfg.GetMaskThreshold() != 0.5 {
		t.Errorf("GetMaskThreshold() = %f, want 0.5", cfg.GetMaskThreshold())
	}
	if cfg.GetContourSteps() != 20 {
		t.Errorf("GetContourSteps() = %d, want 20", cfg.GetContourSteps())
	}
	if cfg.GetReservoirContours() != 10 {
		t.Errorf("GetReservoirContours() = %d, want 10", cfg.GetReservoirContours())
	}
	if cfg.GetMaxConsecutiveErrors() != 10 {
		t.Errorf("GetMaxConsecutiveErrors() = %d, want 10", cfg.GetMaxConsecutiveErrors())
	}
}
