// Package render is the seam between visualization modules and a concrete
// drawing backend. Modules hand a Scene to a Renderer every cycle; the
// backends here cover headless PNG output and an in-memory snapshot consumed
// by the HTTP layer. A projector-facing backend plugs in behind the same
// interface.
package render

import (
	"image/color"
	"math"
	"sync"

	"github.com/terrabox-data/relief.live/internal/sensor"
)

// Norm maps data values onto [0, 1] for colormap lookup.
type Norm struct {
	Min float64
	Max float64
}

// Apply normalizes v, clamped to [0, 1]. A degenerate range maps to 0.
func (n Norm) Apply(v float64) float64 {
	if n.Max <= n.Min {
		return 0
	}
	t := (v - n.Min) / (n.Max - n.Min)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Colormap is an ordered list of color stops interpolated linearly.
type Colormap struct {
	Name  string
	Stops []color.NRGBA
}

// At returns the color for a normalized position t in [0, 1].
func (c Colormap) At(t float64) color.NRGBA {
	if len(c.Stops) == 0 {
		g := uint8(math.Round(255 * t))
		return color.NRGBA{R: g, G: g, B: g, A: 255}
	}
	if len(c.Stops) == 1 || t <= 0 {
		return c.Stops[0]
	}
	if t >= 1 {
		return c.Stops[len(c.Stops)-1]
	}
	f := t * float64(len(c.Stops)-1)
	i := int(f)
	frac := f - float64(i)
	a, b := c.Stops[i], c.Stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

// Colors returns n evenly spaced colors, satisfying gonum/plot's palette
// contract.
func (c Colormap) Colors(n int) []color.Color {
	if n < 1 {
		n = 1
	}
	out := make([]color.Color, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		out[i] = c.At(t)
	}
	return out
}

// Stock colormaps. Terrain is the default for height fields, Spectral for
// volumetric property lookups.
var (
	Terrain = Colormap{Name: "terrain", Stops: []color.NRGBA{
		{R: 40, G: 54, B: 94, A: 255},
		{R: 0, G: 100, B: 160, A: 255},
		{R: 20, G: 155, B: 85, A: 255},
		{R: 215, G: 200, B: 120, A: 255},
		{R: 140, G: 95, B: 60, A: 255},
		{R: 245, G: 245, B: 245, A: 255},
	}}
	Spectral = Colormap{Name: "spectral", Stops: []color.NRGBA{
		{R: 50, G: 50, B: 160, A: 255},
		{R: 80, G: 180, B: 220, A: 255},
		{R: 120, G: 200, B: 100, A: 255},
		{R: 250, G: 230, B: 90, A: 255},
		{R: 230, G: 120, B: 60, A: 255},
		{R: 190, G: 30, B: 40, A: 255},
	}}
	Greys = Colormap{Name: "greys", Stops: []color.NRGBA{
		{R: 0, G: 0, B: 0, A: 255},
		{R: 255, G: 255, B: 255, A: 255},
	}}
)

// ColormapByName resolves a stock colormap; unknown names fall back to
// Spectral.
func ColormapByName(name string) Colormap {
	switch name {
	case Terrain.Name:
		return Terrain
	case Greys.Name:
		return Greys
	default:
		return Spectral
	}
}

// Scene is one rendered cycle's worth of data. Values carries the colored
// field; Mask suppresses pixels (no sensor return, out-of-range depth,
// masked dataset cells). Contour optionally supplies a second field for
// contour lines (e.g. depth while Values shows a property lookup), with
// Overlay for an extra contour set such as the reservoir top surface.
type Scene struct {
	Values *sensor.Frame
	Mask   []bool

	Cmap Colormap
	Norm Norm

	Contour       *sensor.Frame
	ContourLevels []float64

	Overlay       *sensor.Frame
	OverlayLevels []float64
}

// Renderer consumes one Scene per engine cycle.
type Renderer interface {
	Render(s *Scene) error
}

// StatsRecorder receives the depth extremes of each cycle's filtered frame,
// e.g. for persistence. Implementations must not block the update loop.
type StatsRecorder interface {
	FrameStats(depthMin, depthMax float64)
}

// Null discards scenes; used in tests and benchmarks.
type Null struct{}

func (Null) Render(*Scene) error { return nil }

// Snapshot retains the most recent scene for pull-based consumers (the HTTP
// chart endpoints). Safe for concurrent use.
type Snapshot struct {
	mu    sync.RWMutex
	scene *Scene
	seq   uint64
}

// Render implements Renderer.
func (s *Snapshot) Render(scene *Scene) error {
	s.mu.Lock()
	s.scene = scene
	s.seq++
	s.mu.Unlock()
	return nil
}

// Latest returns the last rendered scene and its sequence number; nil before
// the first cycle.
func (s *Snapshot) Latest() (*Scene, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene, s.seq
}

// Multi fans a scene out to several renderers, returning the first error.
type Multi []Renderer

func (m Multi) Render(s *Scene) error {
	for _, r := range m {
		if err := r.Render(s); err != nil {
			return err
		}
	}
	return nil
}

// ContourLevels returns evenly stepped levels covering [min, max) with the
// given step, mirroring the projector's contour line generation. A
// non-positive step yields nil.
func ContourLevels(min, max, step float64) []float64 {
	if step <= 0 || max <= min {
		return nil
	}
	var levels []float64
	for v := min; v < max; v += step {
		levels = append(levels, v)
	}
	return levels
}
