package volume

import (
	"fmt"
	"math"

	"github.com/terrabox-data/relief.live/internal/calib"
	"github.com/terrabox-data/relief.live/internal/monitoring"
	"github.com/terrabox-data/relief.live/internal/render"
	"github.com/terrabox-data/relief.live/internal/sensor"
)

// LookupConfig tunes the volumetric lookup module.
type LookupConfig struct {
	Filter sensor.Filter
	// Crop controls whether Update crops incoming frames to the calibration
	// margins. Disable when the sensor already delivers cropped frames.
	Crop bool
	// MaskThreshold masks cells whose mask value falls below it; the mask
	// datasets are interpolated between 0 and 1 during regridding.
	MaskThreshold float64
	// ContourSteps is the number of depth contour lines drawn over the
	// lookup result; zero disables them.
	ContourSteps int
	// ReservoirContours is the number of contour lines for the reservoir top
	// overlay when it is shown.
	ReservoirContours int
}

// DefaultLookupConfig returns the stock lookup settings.
func DefaultLookupConfig() LookupConfig {
	return LookupConfig{
		Filter:            sensor.DefaultFilter(),
		Crop:              true,
		MaskThreshold:     0.5,
		ContourSteps:      20,
		ReservoirContours: 10,
	}
}

// LookupModule maps the live depth surface into a 3D block set: each output
// pixel's depth selects a layer index, and the pixel shows that layer's cell
// value. It implements engine.Module. Setters follow the engine's
// pause-mutate-resume protocol.
type LookupModule struct {
	cfg    LookupConfig
	sensor sensor.Sensor
	calib  *calib.CalibrationData
	out    render.Renderer

	set      *BlockSet
	palettes map[string]Palette
	key      string // displayed dataset
	stats    render.StatsRecorder

	// Rescaled working copies at the cropped frame resolution.
	blocks   map[string]*Block
	topo     *sensor.Frame
	showTopo bool

	topoLevels  []float64
	depthLevels []float64

	// Sensor range offsets shift the usable depth window at runtime without
	// touching the persisted calibration values.
	origSMin, origSMax     float64
	offMin, offMax, offPos float64
}

// NewLookup wires a lookup module over a prepared block set.
func NewLookup(cfg LookupConfig, s sensor.Sensor, c *calib.CalibrationData, set *BlockSet, out render.Renderer) *LookupModule {
	return &LookupModule{cfg: cfg, sensor: s, calib: c, set: set, out: out}
}

// Name implements engine.Module.
func (m *LookupModule) Name() string { return "volume-lookup" }

// Setup initializes the sensor, rescales every dataset to the cropped frame
// resolution and selects the first non-mask dataset for display.
func (m *LookupModule) Setup() error {
	if err := m.set.Validate(); err != nil {
		return fmt.Errorf("volume lookup: %w", err)
	}
	if err := m.sensor.Setup(); err != nil {
		return fmt.Errorf("volume lookup: sensor setup: %w", err)
	}
	w, h := m.sensor.Resolution()
	m.calib.RegisterSensor(m.sensor.Name(), w, h)
	if err := m.calib.Validate(); err != nil {
		return fmt.Errorf("volume lookup: %w", err)
	}

	m.palettes = m.set.DefaultPalettes()
	m.rescale()

	keys := m.set.Keys()
	if len(keys) == 0 {
		return fmt.Errorf("volume lookup: block set has only the mask dataset")
	}
	m.key = keys[0]

	m.origSMin, m.origSMax = m.calib.SMin, m.calib.SMax
	m.recomputeTopoLevels()
	m.recomputeDepthLevels()
	monitoring.Logf("volume lookup: %d datasets at %dx%dx%d, displaying %q",
		len(m.blocks), m.refBlock().Width, m.refBlock().Height, m.refBlock().Layers, m.key)
	return nil
}

// Update runs one lookup cycle: acquire, crop, mask, clip, index, gather,
// render.
func (m *LookupModule) Update() error {
	frame, err := m.cfg.Filter.Apply(m.sensor)
	if err != nil {
		return fmt.Errorf("volume lookup: %w", err)
	}
	if m.cfg.Crop {
		frame = frame.Crop(m.calib.STop, m.calib.SRight, m.calib.SBottom, m.calib.SLeft)
	}
	if m.stats != nil {
		if mn, mx := frame.MinMaxValid(); mn <= mx {
			m.stats.FrameStats(mn, mx)
		}
	}

	smin, smax := m.calib.SMin, m.calib.SMax
	// The depth mask must be taken before clipping or out-of-range pixels
	// become indistinguishable from valid extremes.
	depthMask := frame.MaskOutside(smin, smax)
	frame.Clip(smin, smax)

	block := m.blocks[m.key]
	maskBlock := m.blocks[MaskKey]
	layers := block.Layers

	result := sensor.NewFrame(frame.Width, frame.Height)
	mask := make([]bool, len(result.Data))
	for i, d := range frame.Data {
		// Depth selects the layer: the shallowest depth reads layer 0, the
		// deepest reads the last layer.
		z := int(math.Round((d - smin) / (smax - smin) * float64(layers-1)))
		if z < 0 {
			z = 0
		} else if z >= layers {
			z = layers - 1
		}
		result.Data[i] = block.Data[i*layers+z]
		mask[i] = depthMask[i]
		if m.key != MaskKey && maskBlock != nil && maskBlock.Data[i*layers+z] < m.cfg.MaskThreshold {
			mask[i] = true
		}
	}

	pal := m.palettes[m.key]
	scene := &render.Scene{
		Values: result,
		Mask:   mask,
		Cmap:   pal.Cmap,
		Norm:   pal.Norm,
	}
	if len(m.depthLevels) > 0 {
		scene.Contour = frame
		scene.ContourLevels = m.depthLevels
	}
	if m.showTopo && m.topo != nil {
		scene.Overlay = m.topo
		scene.OverlayLevels = m.topoLevels
	}
	if err := m.out.Render(scene); err != nil {
		return fmt.Errorf("volume lookup: render: %w", err)
	}
	return nil
}

// Datasets lists the selectable dataset names.
func (m *LookupModule) Datasets() []string { return m.set.Keys() }

// Dataset returns the currently displayed dataset key.
func (m *LookupModule) Dataset() string { return m.key }

// SetDataset switches the displayed dataset. Engine locking contract applies.
func (m *LookupModule) SetDataset(key string) error {
	if _, ok := m.blocks[key]; !ok {
		return fmt.Errorf("volume lookup: unknown dataset %q", key)
	}
	m.key = key
	monitoring.Logf("volume lookup: displaying %q", key)
	return nil
}

// SetStatsRecorder attaches a per-cycle frame stats sink; nil detaches it.
func (m *LookupModule) SetStatsRecorder(r render.StatsRecorder) { m.stats = r }

// SetMaskThreshold adjusts the cell validity cutoff.
func (m *LookupModule) SetMaskThreshold(t float64) {
	m.cfg.MaskThreshold = t
	monitoring.Logf("volume lookup: mask threshold set to %g", t)
}

// SetContourSteps changes the depth contour count.
func (m *LookupModule) SetContourSteps(n int) {
	m.cfg.ContourSteps = n
	m.recomputeDepthLevels()
}

// ShowReservoirTop toggles the reservoir top contour overlay.
func (m *LookupModule) ShowReservoirTop(show bool) { m.showTopo = show }

// SetReservoirContours changes the overlay contour count.
func (m *LookupModule) SetReservoirContours(n int) {
	m.cfg.ReservoirContours = n
	m.recomputeTopoLevels()
}

// SetSensorOffsets shifts the usable depth window: top moves only the lower
// bound, bottom only the upper bound, position moves both together. Offsets
// are in millimeters relative to the calibration values captured at Setup.
func (m *LookupModule) SetSensorOffsets(top, bottom, position float64) {
	m.offMin, m.offMax, m.offPos = top, bottom, position
	m.calib.SMin = m.origSMin + m.offMin + m.offPos
	m.calib.SMax = m.origSMax + m.offMax + m.offPos
	m.recomputeDepthLevels()
	monitoring.Logf("volume lookup: sensor range shifted to [%g, %g]", m.calib.SMin, m.calib.SMax)
}

// SensorOffsets returns the current offsets (top, bottom, position).
func (m *LookupModule) SensorOffsets() (top, bottom, position float64) {
	return m.offMin, m.offMax, m.offPos
}

// Rescale realigns the working dataset copies and the reservoir top with the
// current cropped frame resolution. Must be called under the engine pause
// protocol after any calibration change that moves the crop margins, or the
// next Update indexes blocks sized for the old resolution.
func (m *LookupModule) Rescale() {
	m.rescale()
	m.recomputeTopoLevels()
	monitoring.Logf("volume lookup: datasets rescaled to %dx%d", m.calib.FrameWidth(), m.calib.FrameHeight())
}

func (m *LookupModule) refBlock() *Block {
	for _, b := range m.blocks {
		return b
	}
	return nil
}

// rescale aligns every dataset and the reservoir top with the cropped frame.
func (m *LookupModule) rescale() {
	w, h := m.calib.FrameWidth(), m.calib.FrameHeight()
	m.blocks = make(map[string]*Block, len(m.set.Datasets))
	for k, b := range m.set.Datasets {
		m.blocks[k] = b.RescaleXY(w, h)
	}
	if m.set.ReservoirTop != nil {
		m.topo = rescaleFrame(m.set.ReservoirTop, w, h)
	}
}

func (m *LookupModule) recomputeTopoLevels() {
	m.topoLevels = nil
	if m.topo == nil || m.cfg.ReservoirContours < 1 {
		return
	}
	min, max := m.topo.MinMax()
	m.topoLevels = render.ContourLevels(min, max, (max-min)/float64(m.cfg.ReservoirContours))
}

func (m *LookupModule) recomputeDepthLevels() {
	m.depthLevels = nil
	if m.cfg.ContourSteps < 1 {
		return
	}
	step := (m.calib.SMax - m.calib.SMin) / float64(m.cfg.ContourSteps)
	m.depthLevels = render.ContourLevels(m.calib.SMin, m.calib.SMax, step)
}
