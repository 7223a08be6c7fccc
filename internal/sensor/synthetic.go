package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// SyntheticConfig tunes the synthetic depth generator.
type SyntheticConfig struct {
	Width  int
	Height int
	// DepthMin/DepthMax bound the generated surface in millimeters.
	DepthMin float64
	DepthMax float64
	// Corners seeds the four lattice corners as control points.
	Corners bool
	// Points is the requested number of interior control points. Fewer may
	// be picked when the distance constraint exhausts the candidate set;
	// that is a legal outcome, not an error.
	Points int
	// PointsDistance is the minimum control point separation as a fraction
	// of the lattice diagonal.
	PointsDistance float64
	// AlterationStrength in [0, 1] scales the per-frame phase perturbation;
	// 1 allows offsets up to pi/2. Zero freezes the surface.
	AlterationStrength float64
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64
}

// DefaultSyntheticConfig mirrors the KinectV2 depth resolution and a gentle
// rolling surface.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:              512,
		Height:             424,
		DepthMin:           1170,
		DepthMax:           1370,
		Corners:            true,
		Points:             4,
		PointsDistance:     0.3,
		AlterationStrength: 0.1,
	}
}

// SyntheticSensor produces a smoothly time-varying depth surface by
// interpolating a sparse set of oscillating control points over the pixel
// lattice. It implements Sensor without any hardware.
type SyntheticSensor struct {
	cfg      SyntheticConfig
	minDist  float64
	rng      *rand.Rand
	setupRan bool

	positions [][2]float64 // control point pixel coordinates
	phases    []float64    // one oscillator phase per control point
	depths    []float64    // current depth per control point
	hull      [][2]float64 // convex hull of positions, counter-clockwise
}

// NewSyntheticSensor builds a synthetic sensor from cfg. Call Setup before
// the first GetFrame.
func NewSyntheticSensor(cfg SyntheticConfig) *SyntheticSensor {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	diag := math.Hypot(float64(cfg.Width), float64(cfg.Height))
	return &SyntheticSensor{
		cfg:     cfg,
		minDist: diag * cfg.PointsDistance,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Name implements Sensor.
func (s *SyntheticSensor) Name() string { return "synthetic" }

// Resolution implements Sensor.
func (s *SyntheticSensor) Resolution() (int, int) { return s.cfg.Width, s.cfg.Height }

// Setup picks the control points and their initial oscillator phases.
func (s *SyntheticSensor) Setup() error {
	if s.cfg.Width < 2 || s.cfg.Height < 2 {
		return fmt.Errorf("synthetic sensor: resolution %dx%d too small", s.cfg.Width, s.cfg.Height)
	}
	if s.cfg.DepthMax <= s.cfg.DepthMin {
		return fmt.Errorf("synthetic sensor: depth limits [%g, %g] are empty", s.cfg.DepthMin, s.cfg.DepthMax)
	}

	s.pickPositions()
	s.phases = make([]float64, len(s.positions))
	s.depths = make([]float64, len(s.positions))
	for i := range s.phases {
		s.phases[i] = s.rng.Float64()*2*math.Pi - math.Pi
	}
	s.oscillate()
	s.hull = convexHull(s.positions)
	s.setupRan = true
	monitoring.Logf("synthetic sensor initialized: %d control points, depth [%g, %g]",
		len(s.positions), s.cfg.DepthMin, s.cfg.DepthMax)
	return nil
}

// GetFrame perturbs every oscillator phase and interpolates the control
// points onto the full lattice. Pixels outside the control point hull are
// zero ("no return").
func (s *SyntheticSensor) GetFrame() (*Frame, error) {
	if !s.setupRan {
		return nil, fmt.Errorf("synthetic sensor: GetFrame before Setup")
	}
	s.alterPhases()
	return s.interpolate(), nil
}

// pickPositions selects well-separated control points with a greedy
// farthest-point strategy: corners first, then repeatedly choose a random
// lattice point whose distance to every chosen point exceeds the threshold.
// Runs out of candidates early with fewer points than requested by design.
func (s *SyntheticSensor) pickPositions() {
	w, h := s.cfg.Width, s.cfg.Height
	maxX, maxY := float64(w-1), float64(h-1)

	var points [][2]float64
	// minDistTo[i] tracks the distance from lattice point i to the nearest
	// chosen control point, updated incrementally per pick.
	minDistTo := make([]float64, w*h)
	for i := range minDistTo {
		minDistTo[i] = math.Inf(1)
	}
	admit := func(p [2]float64) {
		points = append(points, p)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := math.Hypot(float64(x)-p[0], float64(y)-p[1])
				if d < minDistTo[y*w+x] {
					minDistTo[y*w+x] = d
				}
			}
		}
	}

	want := s.cfg.Points
	if s.cfg.Corners {
		admit([2]float64{0, 0})
		admit([2]float64{maxX, 0})
		admit([2]float64{0, maxY})
		admit([2]float64{maxX, maxY})
		want += 4
	} else {
		admit([2]float64{float64(s.rng.Intn(w)), float64(s.rng.Intn(h))})
		want++
	}

	for len(points) < want {
		var candidates []int
		for i, d := range minDistTo {
			if d > s.minDist {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			monitoring.Logf("synthetic sensor: candidate set exhausted at %d of %d control points", len(points), want)
			break
		}
		idx := candidates[s.rng.Intn(len(candidates))]
		admit([2]float64{float64(idx % w), float64(idx / w)})
	}
	s.positions = points
}

// oscillate maps each phase to a depth confined to [DepthMin, DepthMax].
func (s *SyntheticSensor) oscillate() {
	amp := (s.cfg.DepthMax - s.cfg.DepthMin) / 2
	for i, p := range s.phases {
		s.depths[i] = amp*math.Sin(p) + amp + s.cfg.DepthMin
	}
}

// alterPhases perturbs every phase by an independent uniform offset bounded
// by strength * pi/2.
func (s *SyntheticSensor) alterPhases() {
	bound := s.cfg.AlterationStrength * math.Pi / 2
	for i := range s.phases {
		s.phases[i] += s.rng.Float64()*2*bound - bound
	}
	s.oscillate()
}

// interpolate evaluates a cubic radial-basis surface through the control
// points at every lattice pixel. Pixels outside the convex hull of the
// control points are filled with zero. In-hull values are clamped to the
// configured depth limits so overshoot between control points can never
// leave the sensor range.
func (s *SyntheticSensor) interpolate() *Frame {
	weights, poly := solveRBF(s.positions, s.depths)
	frame := NewFrame(s.cfg.Width, s.cfg.Height)
	for y := 0; y < s.cfg.Height; y++ {
		fy := float64(y)
		for x := 0; x < s.cfg.Width; x++ {
			fx := float64(x)
			if !insideHull(s.hull, fx, fy) {
				continue
			}
			v := poly[0] + poly[1]*fx + poly[2]*fy
			for i, p := range s.positions {
				r := math.Hypot(fx-p[0], fy-p[1])
				v += weights[i] * r * r * r
			}
			if v < s.cfg.DepthMin {
				v = s.cfg.DepthMin
			} else if v > s.cfg.DepthMax {
				v = s.cfg.DepthMax
			}
			frame.Data[y*frame.Width+x] = v
		}
	}
	return frame
}

// solveRBF solves the cubic RBF system with a linear polynomial tail for the
// given centers and values. The augmented system is
//
//	| A  P | |w|   |d|
//	| Pt 0 | |c| = |0|
//
// with A[i][j] = |xi-xj|^3 and P = [1 x y]. The control point count is tiny,
// so a dense solve per frame is cheap.
func solveRBF(centers [][2]float64, values []float64) (weights []float64, poly [3]float64) {
	n := len(centers)
	size := n + 3
	a := mat.NewDense(size, size, nil)
	b := mat.NewVecDense(size, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := math.Hypot(centers[i][0]-centers[j][0], centers[i][1]-centers[j][1])
			a.Set(i, j, r*r*r)
		}
		a.Set(i, n, 1)
		a.Set(i, n+1, centers[i][0])
		a.Set(i, n+2, centers[i][1])
		a.Set(n, i, 1)
		a.Set(n+1, i, centers[i][0])
		a.Set(n+2, i, centers[i][1])
		b.SetVec(i, values[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		// Degenerate geometry (e.g. collinear points): fall back to the mean
		// value everywhere, which keeps the output inside the depth limits.
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		if n > 0 {
			mean /= float64(n)
		}
		return make([]float64, n), [3]float64{mean, 0, 0}
	}

	weights = make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = sol.AtVec(i)
	}
	poly = [3]float64{sol.AtVec(n), sol.AtVec(n + 1), sol.AtVec(n + 2)}
	return weights, poly
}

// convexHull computes the counter-clockwise hull of the points with the
// monotone chain algorithm.
func convexHull(points [][2]float64) [][2]float64 {
	if len(points) < 3 {
		return append([][2]float64(nil), points...)
	}
	pts := append([][2]float64(nil), points...)
	// Sort by x, then y.
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && less(pts[j], pts[j-1]); j-- {
			pts[j], pts[j-1] = pts[j-1], pts[j]
		}
	}

	var lower, upper [][2]float64
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func less(a, b [2]float64) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func cross(o, a, b [2]float64) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// insideHull reports whether (x, y) lies inside or on the counter-clockwise
// hull.
func insideHull(hull [][2]float64, x, y float64) bool {
	if len(hull) < 3 {
		return false
	}
	p := [2]float64{x, y}
	for i := range hull {
		j := (i + 1) % len(hull)
		if cross(hull[i], hull[j], p) < 0 {
			return false
		}
	}
	return true
}
