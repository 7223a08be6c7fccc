package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/terrabox-data/relief.live/internal/sensor"
)

// frameGrid adapts a Frame (plus mask) to gonum/plot's GridXYZ. Masked
// pixels report NaN, which the heat map leaves undrawn.
type frameGrid struct {
	frame *sensor.Frame
	mask  []bool
}

func (g frameGrid) Dims() (c, r int) { return g.frame.Width, g.frame.Height }
func (g frameGrid) X(c int) float64  { return float64(c) }
func (g frameGrid) Y(r int) float64  { return float64(r) }

func (g frameGrid) Z(c, r int) float64 {
	i := r*g.frame.Width + c
	if g.mask != nil && g.mask[i] {
		return math.NaN()
	}
	return g.frame.Data[i]
}

// fixedPalette satisfies gonum/plot's palette contract with a precomputed
// color list.
type fixedPalette struct{ colors []color.Color }

func (p fixedPalette) Colors() []color.Color { return p.colors }

// PNG renders scenes to heightmap PNGs on disk. Intended for headless runs
// and debugging; the projector backend replaces it in an installation.
type PNG struct {
	// Dir receives latest.png (always) and numbered frames when Every > 0.
	Dir string
	// Every saves frame_NNNNNN.png for every Every-th scene; zero keeps
	// only latest.png.
	Every int
	// Levels is the palette resolution for the heat map.
	Levels int

	count int
}

// NewPNG creates a PNG renderer writing into dir.
func NewPNG(dir string) (*PNG, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("png renderer: %w", err)
	}
	return &PNG{Dir: dir, Levels: 255}, nil
}

// Render implements Renderer.
func (r *PNG) Render(s *Scene) error {
	p := plot.New()
	p.HideAxes()

	levels := r.Levels
	if levels < 2 {
		levels = 255
	}
	pal := fixedPalette{colors: s.Cmap.Colors(levels)}

	hm := plotter.NewHeatMap(frameGrid{frame: s.Values, mask: s.Mask}, pal)
	hm.Min = s.Norm.Min
	hm.Max = s.Norm.Max
	p.Add(hm)

	if s.Contour != nil && len(s.ContourLevels) > 0 {
		c := plotter.NewContour(frameGrid{frame: s.Contour}, s.ContourLevels, fixedPalette{
			colors: []color.Color{color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		})
		p.Add(c)
	}
	if s.Overlay != nil && len(s.OverlayLevels) > 0 {
		c := plotter.NewContour(frameGrid{frame: s.Overlay}, s.OverlayLevels, fixedPalette{
			colors: []color.Color{color.NRGBA{R: 0, G: 0, B: 0, A: 255}},
		})
		p.Add(c)
	}

	r.count++
	if err := p.Save(6*vg.Inch, 6*vg.Inch*vg.Length(s.Values.Height)/vg.Length(s.Values.Width),
		filepath.Join(r.Dir, "latest.png")); err != nil {
		return fmt.Errorf("png renderer: %w", err)
	}
	if r.Every > 0 && r.count%r.Every == 0 {
		name := fmt.Sprintf("frame_%06d.png", r.count)
		if err := p.Save(6*vg.Inch, 6*vg.Inch*vg.Length(s.Values.Height)/vg.Length(s.Values.Width),
			filepath.Join(r.Dir, name)); err != nil {
			return fmt.Errorf("png renderer: %w", err)
		}
	}
	return nil
}
