package calib

import (
	"errors"
	"math"
	"testing"

	"github.com/terrabox-data/relief.live/internal/sensor"
)

func TestGridLatticeCoversExtent(t *testing.T) {
	c := testCalib(4, 3)
	s := NewScale(c, false, &Extent{0, 30, 0, 20, 0, 10})
	s.Calculate()
	g := NewGrid(c, s)

	if len(g.EmptyDepthGrid) != 4*3 {
		t.Fatalf("lattice length = %d, want %d", len(g.EmptyDepthGrid), 4*3)
	}

	// X-major: the first column of entries shares x = 0.
	first := g.EmptyDepthGrid[0]
	if first[0] != 0 || first[1] != 0 {
		t.Errorf("first lattice point = %v, want (0, 0)", first)
	}
	last := g.EmptyDepthGrid[len(g.EmptyDepthGrid)-1]
	if last[0] != 30 || last[1] != 20 {
		t.Errorf("last lattice point = %v, want (30, 20)", last)
	}
}

func TestGridUpdateAttachesScaledDepth(t *testing.T) {
	c := testCalib(3, 2)
	c.SMin, c.SMax = 1000, 1200
	s := NewScale(c, false, &Extent{0, 30, 0, 20, 0, 100})
	s.Calculate()
	g := NewGrid(c, s)

	frame := sensor.NewFrame(3, 2)
	for i := range frame.Data {
		frame.Data[i] = 1000 // shallowest depth everywhere
	}
	if err := g.Update(frame); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if len(g.DepthGrid) != len(g.EmptyDepthGrid) {
		t.Fatalf("depth grid length = %d, want %d", len(g.DepthGrid), len(g.EmptyDepthGrid))
	}
	// d == SMin maps to the top of the Z extent.
	for i, p := range g.DepthGrid {
		if math.Abs(p[2]-100) > 1e-12 {
			t.Fatalf("DepthGrid[%d].z = %f, want 100", i, p[2])
		}
	}

	// d == SMax maps to the bottom.
	for i := range frame.Data {
		frame.Data[i] = 1200
	}
	if err := g.Update(frame); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	for i, p := range g.DepthGrid {
		if math.Abs(p[2]) > 1e-12 {
			t.Fatalf("DepthGrid[%d].z = %f, want 0", i, p[2])
		}
	}
}

func TestGridUpdateClampsOutOfRangeDepth(t *testing.T) {
	c := testCalib(2, 2)
	c.SMin, c.SMax = 1000, 1200
	s := NewScale(c, false, &Extent{0, 10, 0, 10, 0, 100})
	s.Calculate()
	g := NewGrid(c, s)

	frame := sensor.NewFrame(2, 2)
	frame.Data[0] = 500  // below range, clamps to SMin
	frame.Data[1] = 9999 // above range, clamps to SMax
	frame.Data[2] = 1100
	frame.Data[3] = 1100
	if err := g.Update(frame); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	for _, p := range g.DepthGrid {
		if p[2] < 0 || p[2] > 100 {
			t.Errorf("z = %f outside extent [0, 100]", p[2])
		}
	}
}

func TestGridUpdateRejectsResolutionMismatch(t *testing.T) {
	c := testCalib(4, 3)
	s := NewScale(c, false, nil)
	s.Calculate()
	g := NewGrid(c, s)

	prev := g.DepthGrid
	err := g.Update(sensor.NewFrame(7, 5))
	var mismatch *ErrResolutionMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("Update() error = %v, want ErrResolutionMismatch", err)
	}
	if len(g.DepthGrid) != len(prev) {
		t.Error("depth grid changed by rejected update")
	}
}

func TestGridUpdateCropsMargins(t *testing.T) {
	c := testCalib(5, 4)
	c.STop, c.SRight, c.SBottom, c.SLeft = 1, 1, 1, 1
	s := NewScale(c, false, nil)
	s.Calculate()
	g := NewGrid(c, s)

	// Raw frames carry the native resolution; Update crops to 3x2.
	if err := g.Update(sensor.NewFrame(5, 4)); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(g.DepthGrid) != 3*2 {
		t.Errorf("depth grid length = %d, want %d", len(g.DepthGrid), 3*2)
	}
}

func TestGridCropDisabled(t *testing.T) {
	c := testCalib(5, 4)
	c.STop, c.SRight, c.SBottom, c.SLeft = 1, 1, 1, 1
	s := NewScale(c, false, nil)
	s.Calculate()
	g := NewGrid(c, s)
	g.Crop = false

	// Pre-cropped frames pass through untouched.
	if err := g.Update(sensor.NewFrame(3, 2)); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(g.DepthGrid) != 3*2 {
		t.Errorf("depth grid length = %d, want %d", len(g.DepthGrid), 3*2)
	}
}
