// relief-regrid converts a VIP corner point export into a regular block
// snapshot consumable by the daemon's 'block' module. The conversion is
// expensive (one nearest-neighbour lookup per output cell), so it runs once
// offline rather than at daemon startup.
package main

import (
	"flag"
	"log"

	"github.com/terrabox-data/relief.live/internal/volume"
)

var (
	in     = flag.String("in", "", "VIP corner point export to read")
	out    = flag.String("out", "blocks.gob.gz", "block snapshot to write")
	width  = flag.Int("width", 424, "output cells along X")
	height = flag.Int("height", 512, "output cells along Y")
	layers = flag.Int("layers", 100, "output depth layers")
)

func main() {
	flag.Parse()

	if *in == "" {
		log.Fatal("-in is required")
	}

	grid, err := volume.LoadVIP(*in)
	if err != nil {
		log.Fatalf("Failed to parse VIP export: %v", err)
	}
	log.Printf("parsed %dx%dx%d grid with %d properties", grid.NX, grid.NY, grid.NZ, len(grid.Properties))

	set, err := volume.Regrid(grid, volume.Resolution{Width: *width, Height: *height, Layers: *layers})
	if err != nil {
		log.Fatalf("Regridding failed: %v", err)
	}

	if err := volume.SaveSnapshot(set, *out); err != nil {
		log.Fatalf("Failed to write snapshot: %v", err)
	}
	log.Printf("wrote %s", *out)
}
