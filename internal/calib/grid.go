package calib

import (
	"fmt"

	"github.com/terrabox-data/relief.live/internal/sensor"
)

// ErrResolutionMismatch is returned by Grid.Update when the cropped depth
// frame does not match the XY lattice resolution. It signals a configuration
// inconsistency between Scale and the actual frame shape; the grid is left
// unchanged.
type ErrResolutionMismatch struct {
	FrameW, FrameH int
	LatticeW, LatticeH int
}

func (e *ErrResolutionMismatch) Error() string {
	return fmt.Sprintf("grid: cropped frame %dx%d does not match lattice resolution %dx%d; recalculate scale after calibration changes",
		e.FrameW, e.FrameH, e.LatticeW, e.LatticeH)
}

// Grid stores the model-space coordinate of every output pixel. The XY
// lattice is static and rebuilt only when the extent or output resolution
// changes; the Z column is attached from a fresh depth frame every cycle.
type Grid struct {
	calib *CalibrationData
	scale *Scale

	// Crop controls whether Update crops incoming frames to the calibration
	// margins. Disable when the sensor already delivers cropped frames.
	Crop bool

	// EmptyDepthGrid is the static lattice: one (x, y) model coordinate per
	// output pixel, X-major.
	EmptyDepthGrid [][2]float64

	// DepthGrid is the lattice with the scaled Z coordinate appended. It is
	// replaced wholesale by every Update; only its shape is stable across
	// frames.
	DepthGrid [][3]float64

	latticeW, latticeH int
}

// NewGrid builds a grid over the given calibration and scale and constructs
// the initial XY lattice.
func NewGrid(c *CalibrationData, s *Scale) *Grid {
	g := &Grid{calib: c, scale: s, Crop: true}
	g.RebuildXY()
	return g
}

// RebuildXY regenerates the static XY lattice from the scale's extent and
// output resolution. Cheap relative to a frame update, so callers may invoke
// it defensively after calibration changes; it only matters that it runs
// before the next Update.
func (g *Grid) RebuildXY() {
	w, h := g.scale.OutputRes()
	ext := g.scale.Extent

	grid := make([][2]float64, 0, w*h)
	for i := 0; i < w; i++ {
		x := linspaceAt(ext[0], ext[1], w, i)
		for j := 0; j < h; j++ {
			grid = append(grid, [2]float64{x, linspaceAt(ext[2], ext[3], h, j)})
		}
	}
	g.EmptyDepthGrid = grid
	g.latticeW, g.latticeH = w, h
}

// linspaceAt returns the i-th of n evenly spaced values covering [lo, hi]
// inclusive.
func linspaceAt(lo, hi float64, n, i int) float64 {
	if n == 1 {
		return lo
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// Update normalizes a depth frame into model Z units, crops it to the
// calibration margins, rotates it into model axis order and attaches it as
// the third column of the lattice. The flattened depth count must equal the
// lattice length; a mismatch is rejected with ErrResolutionMismatch rather
// than silently truncated.
func (g *Grid) Update(frame *sensor.Frame) error {
	smin, smax := g.calib.SMin, g.calib.SMax
	ext := g.scale.Extent

	scaled := frame.Clone()
	for i, d := range scaled.Data {
		if d < smin {
			d = smin
		} else if d > smax {
			d = smax
		}
		scaled.Data[i] = ext[5] - (d-smin)/(smax-smin)*ext.DZ()
	}

	if g.Crop {
		scaled = scaled.Crop(g.calib.STop, g.calib.SRight, g.calib.SBottom, g.calib.SLeft)
	}
	rotated := scaled.Rot90()

	if rotated.Width*rotated.Height != len(g.EmptyDepthGrid) {
		return &ErrResolutionMismatch{
			FrameW: rotated.Width, FrameH: rotated.Height,
			LatticeW: g.latticeW, LatticeH: g.latticeH,
		}
	}

	depthGrid := make([][3]float64, len(g.EmptyDepthGrid))
	for i, xy := range g.EmptyDepthGrid {
		depthGrid[i] = [3]float64{xy[0], xy[1], rotated.Data[i]}
	}
	g.DepthGrid = depthGrid
	return nil
}
