package sensor

import (
	"fmt"
	"math"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// Sensor is the acquisition contract every depth source implements. Setup
// performs one-time device initialization and is fatal when the hardware is
// unreachable; GetFrame returns one raw depth frame per call.
type Sensor interface {
	// Name identifies the sensor kind, e.g. "synthetic".
	Name() string
	// Resolution returns the native depth resolution in pixels.
	Resolution() (width, height int)
	Setup() error
	GetFrame() (*Frame, error)
}

// AuxFrames is implemented by sensors that additionally expose color or
// infrared streams. The core pipeline never depends on it; dashboard glue
// may type-assert for it.
type AuxFrames interface {
	GetColorFrame() (*Frame, error)
	GetIRFrame() (*Frame, error)
}

// Filter smooths raw frames for downstream consumers: an n-frame temporal
// mean that treats zero samples as missing, followed by a gaussian blur.
// Every sensor implementation shares this filter.
type Filter struct {
	// Frames is the number of raw frames averaged per filtered frame.
	Frames int
	// Sigma is the gaussian blur standard deviation in pixels.
	Sigma float64
}

// DefaultFilter matches the stock acquisition settings.
func DefaultFilter() Filter { return Filter{Frames: 3, Sigma: 3} }

// Apply acquires f.Frames raw frames from s and reduces them to one filtered
// frame. Zero samples denote "no return" and are excluded from the temporal
// mean; a pixel with no return in any frame stays zero. A mid-run frame with
// unexpected dimensions is dropped from the stack and logged rather than
// propagated. Acquisition errors abort the whole filtered read.
func (fl Filter) Apply(s Sensor) (*Frame, error) {
	n := fl.Frames
	if n < 1 {
		n = 1
	}

	var sum, count *Frame
	for i := 0; i < n; i++ {
		raw, err := s.GetFrame()
		if err != nil {
			return nil, fmt.Errorf("filtered frame: acquisition %d/%d from %s: %w", i+1, n, s.Name(), err)
		}
		if sum == nil {
			sum = NewFrame(raw.Width, raw.Height)
			count = NewFrame(raw.Width, raw.Height)
		}
		if raw.Width != sum.Width || raw.Height != sum.Height {
			monitoring.Logf("filter: dropping malformed %dx%d frame from %s (want %dx%d)",
				raw.Width, raw.Height, s.Name(), sum.Width, sum.Height)
			continue
		}
		for j, v := range raw.Data {
			if v != 0 {
				sum.Data[j] += v
				count.Data[j]++
			}
		}
	}

	mean := NewFrame(sum.Width, sum.Height)
	for j := range mean.Data {
		if count.Data[j] > 0 {
			mean.Data[j] = sum.Data[j] / count.Data[j]
		}
	}
	return gaussianBlur(mean, fl.Sigma), nil
}

// FilteredFrame is a convenience wrapper applying the default filter.
func FilteredFrame(s Sensor) (*Frame, error) {
	return DefaultFilter().Apply(s)
}

// gaussianBlur applies a separable gaussian with the given sigma. Edges are
// handled by clamping the sample index. sigma <= 0 returns the input
// unchanged.
func gaussianBlur(f *Frame, sigma float64) *Frame {
	if sigma <= 0 {
		return f
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	tmp := NewFrame(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sx := clampIndex(x+k, f.Width)
				acc += kernel[k+radius] * f.Data[y*f.Width+sx]
			}
			tmp.Data[y*f.Width+x] = acc
		}
	}

	out := NewFrame(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sy := clampIndex(y+k, f.Height)
				acc += kernel[k+radius] * tmp.Data[sy*f.Width+x]
			}
			out.Data[y*f.Width+x] = acc
		}
	}
	return out
}

// gaussianKernel builds a normalized 1D kernel truncated at 4 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
