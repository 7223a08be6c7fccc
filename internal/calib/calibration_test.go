package calib

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDerivedFrameSizes(t *testing.T) {
	c := NewCalibrationData()
	c.SWidth = 500
	c.SHeight = 400
	c.STop, c.SRight, c.SBottom, c.SLeft = 10, 20, 30, 40

	if got := c.FrameWidth(); got != 440 {
		t.Errorf("FrameWidth() = %d, want 440", got)
	}
	if got := c.FrameHeight(); got != 360 {
		t.Errorf("FrameHeight() = %d, want 360", got)
	}

	sx, sy := c.ScaleFactor()
	if sx != float64(c.PFrameWidth)/440 {
		t.Errorf("ScaleFactor x = %f, want %f", sx, float64(c.PFrameWidth)/440)
	}
	if sy != float64(c.PFrameHeight)/360 {
		t.Errorf("ScaleFactor y = %f, want %f", sy, float64(c.PFrameHeight)/360)
	}
}

func TestZeroMarginsAreValid(t *testing.T) {
	c := NewCalibrationData()
	c.STop, c.SRight, c.SBottom, c.SLeft = 0, 0, 0, 0
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() with zero margins = %v, want nil", err)
	}
	if got := c.FrameWidth(); got != c.SWidth {
		t.Errorf("FrameWidth() = %d, want full sensor width %d", got, c.SWidth)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CalibrationData)
	}{
		{"empty depth range", func(c *CalibrationData) { c.SMin = 1200; c.SMax = 1200 }},
		{"inverted depth range", func(c *CalibrationData) { c.SMin = 1500; c.SMax = 700 }},
		{"margins eat the frame", func(c *CalibrationData) { c.SLeft = 300; c.SRight = 300 }},
		{"negative margin", func(c *CalibrationData) { c.STop = -1 }},
		{"zero box", func(c *CalibrationData) { c.BoxWidth = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCalibrationData()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	saved := NewCalibrationData()
	saved.STop = 17
	saved.SMin = 900
	saved.BoxWidth = 1234
	if err := saved.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded := NewCalibrationData()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(saved, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	old := NewCalibrationData()
	old.Version = "0.1"
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := old.SaveTo(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	target := NewCalibrationData()
	target.STop = 42
	before := *target

	err = target.Load(path)
	var incompatible *ErrIncompatibleSnapshot
	if !errors.As(err, &incompatible) {
		t.Fatalf("Load() error = %v, want ErrIncompatibleSnapshot", err)
	}
	if incompatible.Got != "0.1" || incompatible.Want != SchemaVersion {
		t.Errorf("ErrIncompatibleSnapshot = %+v", incompatible)
	}

	// The target must be left byte-identical on rejection.
	if diff := cmp.Diff(&before, target); diff != "" {
		t.Errorf("calibration mutated by failed load (-before +after):\n%s", diff)
	}
}

func TestLoadRejectsInvalidSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	bad := NewCalibrationData()
	bad.SMin, bad.SMax = 1500, 700
	// Bypass Save's implicit validity by writing directly.
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.SaveTo(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	target := NewCalibrationData()
	before := *target
	if err := target.Load(path); err == nil {
		t.Fatal("Load() = nil, want validation error")
	}
	if diff := cmp.Diff(&before, target); diff != "" {
		t.Errorf("calibration mutated by failed load (-before +after):\n%s", diff)
	}
}

func TestLoadFromRejectsGarbage(t *testing.T) {
	c := NewCalibrationData()
	if err := c.LoadFrom(strings.NewReader("not json"), "test"); err == nil {
		t.Error("LoadFrom(garbage) = nil, want error")
	}
}

func TestRegisterSensor(t *testing.T) {
	c := NewCalibrationData()
	c.RegisterSensor("synthetic", 512, 424)
	if c.SName != "synthetic" || c.SWidth != 512 || c.SHeight != 424 {
		t.Errorf("RegisterSensor result = %s %dx%d", c.SName, c.SWidth, c.SHeight)
	}
}
