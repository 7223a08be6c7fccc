// Package volume holds regular 3D property grids ("blocks") and the lookup
// module that projects them onto the sandbox surface: every output pixel
// selects the block layer matching its current depth, so digging exposes
// deeper layers of the dataset.
package volume

import (
	"fmt"
	"math"

	"github.com/terrabox-data/relief.live/internal/render"
	"github.com/terrabox-data/relief.live/internal/sensor"
)

// MaskKey is the reserved dataset name carrying cell validity. Cells with a
// mask value below the lookup threshold are treated as outside the model.
const MaskKey = "mask"

// Block is a regular 3D dataset. Data is stored with Z fastest, then X, then
// Y: index = (y*Width + x)*Layers + z. Layer 0 is the top of the model.
type Block struct {
	Name   string
	Width  int // cells along X
	Height int // cells along Y
	Layers int // cells along Z
	Data   []float64
}

// NewBlock allocates a zeroed block.
func NewBlock(name string, width, height, layers int) *Block {
	return &Block{
		Name:   name,
		Width:  width,
		Height: height,
		Layers: layers,
		Data:   make([]float64, width*height*layers),
	}
}

// At returns the cell value at (x, y, z).
func (b *Block) At(x, y, z int) float64 {
	return b.Data[(y*b.Width+x)*b.Layers+z]
}

// Set stores a cell value at (x, y, z).
func (b *Block) Set(x, y, z int, v float64) {
	b.Data[(y*b.Width+x)*b.Layers+z] = v
}

// ValueRange returns the smallest and largest cell value, ignoring NaNs.
func (b *Block) ValueRange() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range b.Data {
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

// RescaleXY resamples the block's lateral resolution to width x height with
// nearest-neighbour lookup, leaving the layer count unchanged. Used to align
// datasets with the cropped sensor frame.
func (b *Block) RescaleXY(width, height int) *Block {
	out := NewBlock(b.Name, width, height, b.Layers)
	for y := 0; y < height; y++ {
		sy := nearestIndex(y, height, b.Height)
		for x := 0; x < width; x++ {
			sx := nearestIndex(x, width, b.Width)
			src := (sy*b.Width + sx) * b.Layers
			dst := (y*width + x) * b.Layers
			copy(out.Data[dst:dst+b.Layers], b.Data[src:src+b.Layers])
		}
	}
	return out
}

// nearestIndex maps output index i of n onto a source axis of m cells.
func nearestIndex(i, n, m int) int {
	s := int(float64(i) * float64(m) / float64(n))
	if s >= m {
		s = m - 1
	}
	return s
}

// rescaleFrame is the 2D analogue of RescaleXY for the reservoir top map.
func rescaleFrame(f *sensor.Frame, width, height int) *sensor.Frame {
	out := sensor.NewFrame(width, height)
	for y := 0; y < height; y++ {
		sy := nearestIndex(y, height, f.Height)
		for x := 0; x < width; x++ {
			out.Data[y*width+x] = f.Data[sy*f.Width+nearestIndex(x, width, f.Width)]
		}
	}
	return out
}

// BlockSet is a named collection of co-registered blocks plus the optional
// reservoir top surface. All blocks share one resolution.
type BlockSet struct {
	Datasets map[string]*Block
	// ReservoirTop is the Z coordinate of the model's uppermost layer per
	// lateral cell; nil when the source grid carried none.
	ReservoirTop *sensor.Frame
}

// Validate checks that the set is non-empty and dimensionally coherent.
func (bs *BlockSet) Validate() error {
	if len(bs.Datasets) == 0 {
		return fmt.Errorf("block set: no datasets")
	}
	var ref *Block
	for _, b := range bs.Datasets {
		if len(b.Data) != b.Width*b.Height*b.Layers {
			return fmt.Errorf("block set: dataset %q has %d cells, want %d", b.Name, len(b.Data), b.Width*b.Height*b.Layers)
		}
		if ref == nil {
			ref = b
			continue
		}
		if b.Width != ref.Width || b.Height != ref.Height || b.Layers != ref.Layers {
			return fmt.Errorf("block set: dataset %q is %dx%dx%d, want %dx%dx%d like %q",
				b.Name, b.Width, b.Height, b.Layers, ref.Width, ref.Height, ref.Layers, ref.Name)
		}
	}
	return nil
}

// Keys returns the dataset names, mask excluded, in no particular order.
func (bs *BlockSet) Keys() []string {
	keys := make([]string, 0, len(bs.Datasets))
	for k := range bs.Datasets {
		if k == MaskKey {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Palette binds a colormap and value range to one dataset.
type Palette struct {
	Cmap render.Colormap
	Norm render.Norm
}

// DefaultPalettes derives a palette per dataset from its value range, using
// the spectral colormap throughout.
func (bs *BlockSet) DefaultPalettes() map[string]Palette {
	out := make(map[string]Palette, len(bs.Datasets))
	for k, b := range bs.Datasets {
		min, max := b.ValueRange()
		out[k] = Palette{Cmap: render.Spectral, Norm: render.Norm{Min: min, Max: max}}
	}
	return out
}
