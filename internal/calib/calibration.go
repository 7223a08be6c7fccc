// Package calib holds the shared calibration record for the sandbox and the
// scale/grid objects derived from it. One CalibrationData instance is shared
// by every component of a running system; writers must follow the engine's
// pause-mutate-resume protocol.
package calib

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// SchemaVersion identifies the calibration snapshot layout. It changes
// whenever fields are added or removed; snapshots carrying any other version
// are rejected on load.
const SchemaVersion = "0.9"

// ErrIncompatibleSnapshot is returned by Load when a snapshot's version tag
// does not match SchemaVersion. The calibration it was loaded into is left
// untouched.
type ErrIncompatibleSnapshot struct {
	Path string
	Got  string
	Want string
}

func (e *ErrIncompatibleSnapshot) Error() string {
	return fmt.Sprintf("calibration snapshot %s has version %q, want %q; recalibrate manually", e.Path, e.Got, e.Want)
}

// CalibrationData describes the mapping between the projector, the depth
// sensor and the physical box. All linear sensor quantities are in sensor
// pixels, depth range in millimeters, box size in millimeters.
type CalibrationData struct {
	Version string `json:"version"`

	// Projector framing.
	PWidth       int `json:"p_width"`
	PHeight      int `json:"p_height"`
	PFrameTop    int `json:"p_frame_top"`
	PFrameLeft   int `json:"p_frame_left"`
	PFrameWidth  int `json:"p_frame_width"`
	PFrameHeight int `json:"p_frame_height"`

	// Sensor identity and native resolution. SWidth/SHeight are written once
	// by the attached sensor during its setup.
	SName   string `json:"s_name"`
	SWidth  int    `json:"s_width"`
	SHeight int    `json:"s_height"`

	// Crop margins, in sensor pixels from each edge.
	STop    int `json:"s_top"`
	SRight  int `json:"s_right"`
	SBottom int `json:"s_bottom"`
	SLeft   int `json:"s_left"`

	// Usable depth range in millimeters.
	SMin float64 `json:"s_min"`
	SMax float64 `json:"s_max"`

	// Physical box dimensions in millimeters.
	BoxWidth  float64 `json:"box_width"`
	BoxHeight float64 `json:"box_height"`
}

// NewCalibrationData returns a calibration populated with the project
// defaults. The sensor resolution is a placeholder until a sensor registers
// its native resolution via RegisterSensor.
func NewCalibrationData() *CalibrationData {
	return &CalibrationData{
		Version:      SchemaVersion,
		PWidth:       1280,
		PHeight:      800,
		PFrameWidth:  600,
		PFrameHeight: 450,
		SName:        "generic",
		SWidth:       500,
		SHeight:      400,
		STop:         10,
		SRight:       10,
		SBottom:      10,
		SLeft:        10,
		SMin:         700,
		SMax:         1500,
		BoxWidth:     1000,
		BoxHeight:    800,
	}
}

// FrameWidth is the width of the cropped sensor frame in pixels.
func (c *CalibrationData) FrameWidth() int { return c.SWidth - c.SLeft - c.SRight }

// FrameHeight is the height of the cropped sensor frame in pixels.
func (c *CalibrationData) FrameHeight() int { return c.SHeight - c.STop - c.SBottom }

// ScaleFactor returns the projector-frame pixels per cropped sensor pixel on
// each axis.
func (c *CalibrationData) ScaleFactor() (x, y float64) {
	return float64(c.PFrameWidth) / float64(c.FrameWidth()),
		float64(c.PFrameHeight) / float64(c.FrameHeight())
}

// RegisterSensor records the attached sensor's identity and native
// resolution. Called once during sensor setup.
func (c *CalibrationData) RegisterSensor(name string, width, height int) {
	c.SName = name
	c.SWidth = width
	c.SHeight = height
}

// Validate checks the calibration for internally inconsistent values. It
// names the offending field so the error is actionable from a dashboard.
func (c *CalibrationData) Validate() error {
	if c.SWidth <= 0 || c.SHeight <= 0 {
		return fmt.Errorf("calibration: sensor resolution %dx%d is not positive", c.SWidth, c.SHeight)
	}
	if fw := c.FrameWidth(); fw <= 0 {
		return fmt.Errorf("calibration: margins s_left=%d s_right=%d leave frame width %d (sensor width %d)",
			c.SLeft, c.SRight, fw, c.SWidth)
	}
	if fh := c.FrameHeight(); fh <= 0 {
		return fmt.Errorf("calibration: margins s_top=%d s_bottom=%d leave frame height %d (sensor height %d)",
			c.STop, c.SBottom, fh, c.SHeight)
	}
	if c.STop < 0 || c.SRight < 0 || c.SBottom < 0 || c.SLeft < 0 {
		return fmt.Errorf("calibration: crop margins must not be negative (top=%d right=%d bottom=%d left=%d)",
			c.STop, c.SRight, c.SBottom, c.SLeft)
	}
	if c.SMax <= c.SMin {
		return fmt.Errorf("calibration: depth range s_min=%g s_max=%g is empty", c.SMin, c.SMax)
	}
	if c.BoxWidth <= 0 || c.BoxHeight <= 0 {
		return fmt.Errorf("calibration: box dimensions %gx%g mm are not positive", c.BoxWidth, c.BoxHeight)
	}
	return nil
}

// LoadFrom replaces the whole calibration with the snapshot read from r,
// but only if the snapshot's version matches SchemaVersion and the result
// validates. On any error the receiver is left byte-identical to before.
// The path argument is used for error reporting only.
func (c *CalibrationData) LoadFrom(r io.Reader, path string) error {
	var snap CalibrationData
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("calibration snapshot %s: %w", path, err)
	}
	if snap.Version != SchemaVersion {
		return &ErrIncompatibleSnapshot{Path: path, Got: snap.Version, Want: SchemaVersion}
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("calibration snapshot %s: %w", path, err)
	}
	*c = snap
	monitoring.Logf("calibration loaded from %s", path)
	return nil
}

// Load reads a snapshot file. All-or-nothing: see LoadFrom.
func (c *CalibrationData) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("calibration snapshot: %w", err)
	}
	defer f.Close()
	return c.LoadFrom(f, path)
}

// SaveTo serializes every calibration field to w.
func (c *CalibrationData) SaveTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Save writes the calibration snapshot to path.
func (c *CalibrationData) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("calibration snapshot: %w", err)
	}
	defer f.Close()
	if err := c.SaveTo(f); err != nil {
		return fmt.Errorf("calibration snapshot %s: %w", path, err)
	}
	monitoring.Logf("calibration saved to %s", path)
	return nil
}
