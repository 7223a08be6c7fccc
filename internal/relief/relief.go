// Package relief implements the topography visualization: every cycle it
// acquires a filtered depth frame, normalizes it into model elevation and
// renders a colored heightmap with optional contour lines.
package relief

import (
	"fmt"

	"github.com/terrabox-data/relief.live/internal/calib"
	"github.com/terrabox-data/relief.live/internal/monitoring"
	"github.com/terrabox-data/relief.live/internal/render"
	"github.com/terrabox-data/relief.live/internal/sensor"
)

// Config tunes the topography module.
type Config struct {
	// Filter applied to every raw acquisition.
	Filter sensor.Filter
	// Colormap name for the elevation field.
	Colormap string
	// ContourStep is the elevation spacing between contour lines in model
	// units; zero disables contours.
	ContourStep float64
}

// DefaultConfig returns the stock topography settings.
func DefaultConfig() Config {
	return Config{
		Filter:      sensor.DefaultFilter(),
		Colormap:    render.Terrain.Name,
		ContourStep: 10,
	}
}

// Module turns depth frames into elevation scenes. It implements
// engine.Module; all setters must be called under the engine's
// pause-mutate-resume protocol once the engine is running.
type Module struct {
	cfg    Config
	sensor sensor.Sensor
	calib  *calib.CalibrationData
	scale  *calib.Scale
	grid   *calib.Grid
	out    render.Renderer

	cmap   render.Colormap
	levels []float64
	stats  render.StatsRecorder
}

// New wires a topography module. The grid must be built over the same
// calibration and scale.
func New(cfg Config, s sensor.Sensor, c *calib.CalibrationData, sc *calib.Scale, g *calib.Grid, out render.Renderer) *Module {
	return &Module{cfg: cfg, sensor: s, calib: c, scale: sc, grid: g, out: out}
}

// Name implements engine.Module.
func (m *Module) Name() string { return "topography" }

// Setup initializes the sensor, registers its native resolution with the
// calibration and derives the scale and lattice from it.
func (m *Module) Setup() error {
	if err := m.sensor.Setup(); err != nil {
		return fmt.Errorf("topography: sensor setup: %w", err)
	}
	w, h := m.sensor.Resolution()
	m.calib.RegisterSensor(m.sensor.Name(), w, h)
	if err := m.calib.Validate(); err != nil {
		return fmt.Errorf("topography: %w", err)
	}
	m.scale.Calculate()
	m.grid.RebuildXY()
	m.cmap = render.ColormapByName(m.cfg.Colormap)
	m.recomputeLevels()
	monitoring.Logf("topography: sensor %s at %dx%d, output %dx%d",
		m.sensor.Name(), w, h, m.calib.FrameWidth(), m.calib.FrameHeight())
	return nil
}

// Update runs one acquisition-to-scene cycle.
func (m *Module) Update() error {
	frame, err := m.cfg.Filter.Apply(m.sensor)
	if err != nil {
		return fmt.Errorf("topography: %w", err)
	}
	if m.stats != nil {
		if mn, mx := frame.MinMaxValid(); mn <= mx {
			m.stats.FrameStats(mn, mx)
		}
	}
	if err := m.grid.Update(frame); err != nil {
		return fmt.Errorf("topography: %w", err)
	}

	elev := m.elevation()
	scene := &render.Scene{
		Values: elev,
		Cmap:   m.cmap,
		Norm:   render.Norm{Min: m.scale.Extent[4], Max: m.scale.Extent[5]},
	}
	if len(m.levels) > 0 {
		scene.Contour = elev
		scene.ContourLevels = m.levels
	}
	if err := m.out.Render(scene); err != nil {
		return fmt.Errorf("topography: render: %w", err)
	}
	return nil
}

// elevation extracts the Z column of the depth grid back into frame form,
// in model axis order.
func (m *Module) elevation() *sensor.Frame {
	w, h := m.scale.OutputRes()
	// The lattice is rotated relative to the sensor frame, so the elevation
	// image is h wide by w tall.
	out := sensor.NewFrame(h, w)
	for i, p := range m.grid.DepthGrid {
		out.Data[i] = p[2]
	}
	return out
}

// SetStatsRecorder attaches a per-cycle frame stats sink; nil detaches it.
func (m *Module) SetStatsRecorder(r render.StatsRecorder) { m.stats = r }

// SetContourStep changes the contour spacing. Callers must hold the engine
// lock or have paused the engine.
func (m *Module) SetContourStep(step float64) {
	m.cfg.ContourStep = step
	m.recomputeLevels()
	monitoring.Logf("topography: contour step set to %g", step)
}

// SetColormap switches the elevation palette. Same locking contract as
// SetContourStep.
func (m *Module) SetColormap(name string) {
	m.cfg.Colormap = name
	m.cmap = render.ColormapByName(name)
	monitoring.Logf("topography: colormap set to %s", m.cmap.Name)
}

func (m *Module) recomputeLevels() {
	m.levels = render.ContourLevels(m.scale.Extent[4], m.scale.Extent[5], m.cfg.ContourStep)
}
