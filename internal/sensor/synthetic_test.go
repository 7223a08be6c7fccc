package sensor

import (
	"math"
	"testing"
)

func testSyntheticConfig() SyntheticConfig {
	cfg := DefaultSyntheticConfig()
	cfg.Width, cfg.Height = 32, 24
	cfg.Seed = 42
	return cfg
}

func TestSyntheticFrameStaysWithinDepthLimits(t *testing.T) {
	cfg := testSyntheticConfig()
	s := NewSyntheticSensor(cfg)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	for n := 0; n < 5; n++ {
		f, err := s.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame() error: %v", err)
		}
		if f.Width != cfg.Width || f.Height != cfg.Height {
			t.Fatalf("frame size = %dx%d, want %dx%d", f.Width, f.Height, cfg.Width, cfg.Height)
		}
		for i, v := range f.Data {
			// Zero means outside the control point hull; anything else must
			// respect the configured depth window.
			if v == 0 {
				continue
			}
			if v < cfg.DepthMin || v > cfg.DepthMax {
				t.Fatalf("Data[%d] = %f outside [%f, %f]", i, v, cfg.DepthMin, cfg.DepthMax)
			}
		}
	}
}

func TestSyntheticFrozenSurfaceIsStable(t *testing.T) {
	cfg := testSyntheticConfig()
	cfg.AlterationStrength = 0
	s := NewSyntheticSensor(cfg)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	first, err := s.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Data {
		if first.Data[i] != second.Data[i] {
			t.Fatalf("frozen surface changed at %d: %f != %f", i, first.Data[i], second.Data[i])
		}
	}
}

func TestSyntheticSeedIsDeterministic(t *testing.T) {
	cfg := testSyntheticConfig()

	a := NewSyntheticSensor(cfg)
	b := NewSyntheticSensor(cfg)
	if err := a.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := b.Setup(); err != nil {
		t.Fatal(err)
	}

	fa, err := a.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	fb, err := b.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	for i := range fa.Data {
		if fa.Data[i] != fb.Data[i] {
			t.Fatalf("same seed diverged at %d: %f != %f", i, fa.Data[i], fb.Data[i])
		}
	}
}

func TestSyntheticAlterationMovesSurface(t *testing.T) {
	cfg := testSyntheticConfig()
	cfg.AlterationStrength = 1
	s := NewSyntheticSensor(cfg)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}

	first, err := s.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	changed := false
	for i := range first.Data {
		if first.Data[i] != second.Data[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("full-strength alteration produced an identical frame")
	}
}

func TestSyntheticCornersCoverLattice(t *testing.T) {
	// With corner seeding the hull is the whole lattice, so no pixel
	// reports "no return".
	cfg := testSyntheticConfig()
	s := NewSyntheticSensor(cfg)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	f, err := s.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range f.Data {
		if v == 0 {
			t.Fatalf("Data[%d] = 0 inside a corner-seeded lattice", i)
		}
	}
}

func TestSyntheticSetupRejectsBadConfig(t *testing.T) {
	cfg := testSyntheticConfig()
	cfg.DepthMin, cfg.DepthMax = 1370, 1170
	if err := NewSyntheticSensor(cfg).Setup(); err == nil {
		t.Error("Setup() with inverted depth limits = nil, want error")
	}

	cfg = testSyntheticConfig()
	cfg.Width = 1
	if err := NewSyntheticSensor(cfg).Setup(); err == nil {
		t.Error("Setup() with 1px width = nil, want error")
	}
}

func TestSyntheticGetFrameBeforeSetup(t *testing.T) {
	s := NewSyntheticSensor(testSyntheticConfig())
	if _, err := s.GetFrame(); err == nil {
		t.Error("GetFrame() before Setup() = nil, want error")
	}
}

func TestSyntheticDistanceConstraintLimitsPoints(t *testing.T) {
	// A minimum distance of the full diagonal leaves no room for interior
	// points beyond the corners; picking must stop early, not loop.
	cfg := testSyntheticConfig()
	cfg.Points = 50
	cfg.PointsDistance = 1
	s := NewSyntheticSensor(cfg)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if got := len(s.positions); got != 4 {
		t.Errorf("picked %d control points, want just the 4 corners", got)
	}
}

func TestConvexHullSquare(t *testing.T) {
	pts := [][2]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {5, 5}}
	hull := convexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("hull size = %d, want 4", len(hull))
	}
	if !insideHull(hull, 5, 5) {
		t.Error("interior point reported outside hull")
	}
	if !insideHull(hull, 0, 0) {
		t.Error("hull vertex reported outside hull")
	}
	if insideHull(hull, 11, 5) {
		t.Error("exterior point reported inside hull")
	}
}

func TestSolveRBFInterpolatesCenters(t *testing.T) {
	centers := [][2]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {3, 7}}
	values := []float64{1200, 1250, 1300, 1220, 1280}

	weights, poly := solveRBF(centers, values)
	for i, c := range centers {
		v := poly[0] + poly[1]*c[0] + poly[2]*c[1]
		for j, p := range centers {
			r := math.Hypot(c[0]-p[0], c[1]-p[1])
			v += weights[j] * r * r * r
		}
		if math.Abs(v-values[i]) > 1e-6 {
			t.Errorf("surface at center %d = %f, want %f", i, v, values[i])
		}
	}
}
