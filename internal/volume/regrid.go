package volume

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/terrabox-data/relief.live/internal/monitoring"
	"github.com/terrabox-data/relief.live/internal/sensor"
)

// Resolution is the regular grid size a corner grid is resampled onto.
type Resolution struct {
	Width  int // cells along X
	Height int // cells along Y
	Layers int // cells along Z
}

// DefaultResolution matches the KinectV2 depth resolution with 100 depth
// layers, so the regridded blocks line up with sensor pixels without further
// resampling.
func DefaultResolution() Resolution {
	return Resolution{Width: 424, Height: 512, Layers: 100}
}

// Regrid resamples an irregular corner grid onto a regular block set with
// nearest-neighbour lookup over the cell centers. The mask property gets its
// outer cell shell zeroed first so lookups beyond the model hull resolve to
// dead cells instead of smearing the border values outward. The returned set
// includes the reservoir top surface when the grid carries coordinates.
func Regrid(g *CornerGrid, res Resolution) (*BlockSet, error) {
	if len(g.X) != g.cells() {
		return nil, fmt.Errorf("regrid: grid has %d coordinates, want %d", len(g.X), g.cells())
	}
	if res.Width < 1 || res.Height < 1 || res.Layers < 1 {
		return nil, fmt.Errorf("regrid: resolution %dx%dx%d is not positive", res.Width, res.Height, res.Layers)
	}
	if mask, ok := g.Properties[MaskKey]; ok {
		zeroMaskShell(g, mask)
	}

	xmin, xmax := floats.Min(g.X), floats.Max(g.X)
	ymin, ymax := floats.Min(g.Y), floats.Max(g.Y)
	zmin, zmax := floats.Min(g.Z), floats.Max(g.Z)

	pts := make(cellPoints, g.cells())
	for i := range pts {
		pts[i] = cellPoint{c: [3]float64{g.X[i], g.Y[i], g.Z[i]}, cell: i}
	}
	tree := kdtree.New(pts, true)
	monitoring.Logf("regrid: spatial index over %d cells built", len(pts))

	bs := &BlockSet{Datasets: make(map[string]*Block, len(g.Properties))}
	for key := range g.Properties {
		bs.Datasets[key] = NewBlock(key, res.Width, res.Height, res.Layers)
	}

	for y := 0; y < res.Height; y++ {
		gy := linspace(ymin, ymax, res.Height, y)
		for x := 0; x < res.Width; x++ {
			gx := linspace(xmin, xmax, res.Width, x)
			for z := 0; z < res.Layers; z++ {
				q := cellPoint{c: [3]float64{gx, gy, linspace(zmin, zmax, res.Layers, z)}}
				got, _ := tree.Nearest(q)
				cell := got.(cellPoint).cell
				for key, prop := range g.Properties {
					bs.Datasets[key].Set(x, y, z, prop[cell])
				}
			}
		}
		if (y+1)%64 == 0 {
			monitoring.Logf("regrid: %d/%d rows", y+1, res.Height)
		}
	}

	bs.ReservoirTop = reservoirTop(g, res, xmin, xmax, ymin, ymax)
	monitoring.Logf("regrid: %d datasets at %dx%dx%d", len(bs.Datasets), res.Width, res.Height, res.Layers)
	return bs, nil
}

// reservoirTop resamples the Z coordinate of the uppermost cell layer onto
// the lateral output grid.
func reservoirTop(g *CornerGrid, res Resolution, xmin, xmax, ymin, ymax float64) *sensor.Frame {
	pts := make(cellPoints, 0, g.NX*g.NY)
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			i := g.idx(x, y, 0)
			pts = append(pts, cellPoint{c: [3]float64{g.X[i], g.Y[i], 0}, cell: i})
		}
	}
	tree := kdtree.New(pts, true)

	topo := sensor.NewFrame(res.Width, res.Height)
	for y := 0; y < res.Height; y++ {
		gy := linspace(ymin, ymax, res.Height, y)
		for x := 0; x < res.Width; x++ {
			q := cellPoint{c: [3]float64{linspace(xmin, xmax, res.Width, x), gy, 0}}
			got, _ := tree.Nearest(q)
			topo.Data[y*res.Width+x] = g.Z[got.(cellPoint).cell]
		}
	}
	return topo
}

// zeroMaskShell marks every cell on the six outer faces of the mask dead, so
// nearest-neighbour lookups outside the model resolve to masked cells.
func zeroMaskShell(g *CornerGrid, mask []float64) {
	for z := 0; z < g.NZ; z++ {
		for y := 0; y < g.NY; y++ {
			for x := 0; x < g.NX; x++ {
				if x == 0 || x == g.NX-1 || y == 0 || y == g.NY-1 || z == 0 || z == g.NZ-1 {
					mask[g.idx(x, y, z)] = 0
				}
			}
		}
	}
	// NaNs in the mask compare false against any threshold; make them
	// explicitly dead.
	for i, v := range mask {
		if v != v {
			mask[i] = 0
		}
	}
}

func linspace(lo, hi float64, n, i int) float64 {
	if n == 1 {
		return lo
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// cellPoint is one cell center in the spatial index, carrying its flat cell
// index as payload.
type cellPoint struct {
	c    [3]float64
	cell int
}

func (p cellPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.c[d] - c.(cellPoint).c[d]
}

func (p cellPoint) Dims() int { return 3 }

func (p cellPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(cellPoint)
	dx := p.c[0] - q.c[0]
	dy := p.c[1] - q.c[1]
	dz := p.c[2] - q.c[2]
	return dx*dx + dy*dy + dz*dz
}

type cellPoints []cellPoint

func (p cellPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p cellPoints) Len() int                      { return len(p) }
func (p cellPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p cellPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(cellPlane{cellPoints: p, Dim: d}, kdtree.MedianOfRandoms(cellPlane{cellPoints: p, Dim: d}, 100))
}

type cellPlane struct {
	cellPoints
	kdtree.Dim
}

func (p cellPlane) Less(i, j int) bool {
	return p.cellPoints[i].c[p.Dim] < p.cellPoints[j].c[p.Dim]
}

func (p cellPlane) Slice(start, end int) kdtree.SortSlicer {
	return cellPlane{cellPoints: p.cellPoints[start:end], Dim: p.Dim}
}

func (p cellPlane) Swap(i, j int) {
	p.cellPoints[i], p.cellPoints[j] = p.cellPoints[j], p.cellPoints[i]
}
