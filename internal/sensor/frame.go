// Package sensor defines the depth-sensor contract, the shared frame filter
// and a synthetic sensor that produces plausible depth surfaces without
// hardware.
package sensor

import "math"

// Frame is one 2D array of depth samples, row-major, one float64 per sensor
// pixel. A sample of zero means "no return" and is treated as missing by the
// filter, never averaged into depth statistics.
type Frame struct {
	Width  int
	Height int
	Data   []float64 // len = Width*Height, index = y*Width + x
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Data: make([]float64, width*height)}
}

// At returns the sample at column x, row y.
func (f *Frame) At(x, y int) float64 { return f.Data[y*f.Width+x] }

// Set stores a sample at column x, row y.
func (f *Frame) Set(x, y int, v float64) { f.Data[y*f.Width+x] = v }

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Data: make([]float64, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// Crop returns a new frame with the given margins removed from each edge.
// Zero margins are valid and crop nothing on that edge.
func (f *Frame) Crop(top, right, bottom, left int) *Frame {
	w := f.Width - left - right
	h := f.Height - top - bottom
	out := NewFrame(w, h)
	for y := 0; y < h; y++ {
		src := (y+top)*f.Width + left
		copy(out.Data[y*w:(y+1)*w], f.Data[src:src+w])
	}
	return out
}

// Rot90 returns the frame rotated 90 degrees counter-clockwise, aligning
// sensor axis order with model axis order.
func (f *Frame) Rot90() *Frame {
	out := NewFrame(f.Height, f.Width)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Data[y*out.Width+x] = f.Data[x*f.Width+(f.Width-1-y)]
		}
	}
	return out
}

// Clip clamps every sample into [lo, hi] in place and returns the frame.
func (f *Frame) Clip(lo, hi float64) *Frame {
	for i, v := range f.Data {
		if v < lo {
			f.Data[i] = lo
		} else if v > hi {
			f.Data[i] = hi
		}
	}
	return f
}

// MaskOutside returns a per-pixel mask that is true for samples outside
// [lo, hi]. Callers that also clip must build the mask first.
func (f *Frame) MaskOutside(lo, hi float64) []bool {
	mask := make([]bool, len(f.Data))
	for i, v := range f.Data {
		mask[i] = v < lo || v > hi
	}
	return mask
}

// MinMaxValid returns the extremes over samples that are neither zero
// ("no return") nor NaN. A frame with no valid samples reports (+Inf, -Inf).
func (f *Frame) MinMaxValid() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range f.Data {
		if v == 0 || math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// MinMax returns the smallest and largest sample, ignoring NaNs. A frame of
// only NaNs reports (+Inf, -Inf).
func (f *Frame) MinMax() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range f.Data {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
