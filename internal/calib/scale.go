package calib

import "github.com/terrabox-data/relief.live/internal/monitoring"

// Extent is the model bounding box as [xmin, xmax, ymin, ymax, zmin, zmax]
// in model units.
type Extent [6]float64

// DX returns the extent width along X.
func (e Extent) DX() float64 { return e[1] - e[0] }

// DY returns the extent width along Y.
func (e Extent) DY() float64 { return e[3] - e[2] }

// DZ returns the extent depth along Z.
func (e Extent) DZ() float64 { return e[5] - e[4] }

// Scale derives the affine mapping between sensor pixels, millimeters and
// model units from the calibration and an optional explicit model extent.
// All factors are recomputed wholesale by Calculate; a Scale is never
// partially valid. Callers must call Calculate again after any calibration
// mutation that touches margins, depth range or box dimensions.
type Scale struct {
	calib *CalibrationData

	// XYIsometric forces equal model-units-per-pixel on X and Y. The axis
	// with the smaller raw scale is raised to the larger one so the model
	// always fits the box without distortion.
	XYIsometric bool

	// Extent of the model in model units. Defaults to the box footprint and
	// the sensor depth range.
	Extent Extent

	// PixelScale is model units per output pixel on X and Y.
	PixelScale [2]float64
	// PixelSize is millimeters per output pixel on X and Y.
	PixelSize [2]float64
	// Factors is model units per millimeter per axis (X, Y, Z).
	Factors [3]float64
}

// NewScale builds a Scale over the given calibration. A nil extent selects
// the default model extent: box dimensions on X/Y and the sensor depth range
// on Z.
func NewScale(c *CalibrationData, isometric bool, extent *Extent) *Scale {
	s := &Scale{calib: c, XYIsometric: isometric}
	if extent != nil {
		s.Extent = *extent
	} else {
		s.Extent = Extent{0, c.BoxWidth, 0, c.BoxHeight, c.SMin, c.SMax}
	}
	return s
}

// OutputRes is the output resolution in pixels: the cropped sensor frame
// size (width, height).
func (s *Scale) OutputRes() (w, h int) {
	return s.calib.FrameWidth(), s.calib.FrameHeight()
}

// Calculate recomputes all scaling factors from the current calibration and
// extent.
func (s *Scale) Calculate() {
	w, h := s.OutputRes()

	s.PixelScale[0] = s.Extent.DX() / float64(w)
	s.PixelScale[1] = s.Extent.DY() / float64(h)
	s.PixelSize[0] = s.calib.BoxWidth / float64(w)
	s.PixelSize[1] = s.calib.BoxHeight / float64(h)

	if s.XYIsometric {
		// Never shrink: the axis with the smaller raw scale is expanded so
		// the whole model fits the box.
		if s.PixelScale[0] >= s.PixelScale[1] {
			s.PixelScale[1] = s.PixelScale[0]
			monitoring.Logf("scale: isometric XY, model size limited by X dimension")
		} else {
			s.PixelScale[0] = s.PixelScale[1]
			monitoring.Logf("scale: isometric XY, model size limited by Y dimension")
		}
	}

	s.Factors[0] = s.PixelScale[0] / s.PixelSize[0]
	s.Factors[1] = s.PixelScale[1] / s.PixelSize[1]
	// Z scale comes from the depth range alone, independent of the XY fit.
	s.Factors[2] = s.Extent.DZ() / (s.calib.SMax - s.calib.SMin)
}
