package volume

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// CornerGrid is an irregular reservoir grid as exported in the VIP corner
// point format: per-cell center coordinates plus named cell properties. The
// LIVECELL section is stored as the "mask" property. Arrays are indexed
// (z*NY+y)*NX + x.
type CornerGrid struct {
	NX, NY, NZ int

	X, Y, Z []float64

	Properties map[string][]float64
}

func (g *CornerGrid) cells() int { return g.NX * g.NY * g.NZ }

func (g *CornerGrid) idx(x, y, z int) int { return (z*g.NY+y)*g.NX + x }

// LoadVIP parses a VIP corner point export from path.
func LoadVIP(path string) (*CornerGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vip: %w", err)
	}
	defer f.Close()
	g, err := ParseVIP(f)
	if err != nil {
		return nil, fmt.Errorf("vip %s: %w", path, err)
	}
	return g, nil
}

// ParseVIP reads a VIP corner point grid: the Size header, the CORP corner
// coordinates, the LIVECELL mask and every subsequent VALUE property block.
// A malformed VALUE block stops property parsing with a log line; everything
// parsed up to that point is kept, matching how partially exported files are
// handled in practice.
func ParseVIP(r io.Reader) (*CornerGrid, error) {
	s := &vipScanner{sc: bufio.NewScanner(r)}
	s.sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if err := s.skipToColumn1("Size"); err != nil {
		return nil, fmt.Errorf("vip: missing Size header: %w", err)
	}
	dims, err := s.nextFields()
	if err != nil || len(dims) < 4 {
		return nil, fmt.Errorf("vip: malformed grid dimensions near line %d", s.line)
	}
	g := &CornerGrid{Properties: make(map[string][]float64)}
	if g.NX, err = strconv.Atoi(dims[1]); err != nil {
		return nil, fmt.Errorf("vip: bad nx %q on line %d", dims[1], s.line)
	}
	if g.NY, err = strconv.Atoi(dims[2]); err != nil {
		return nil, fmt.Errorf("vip: bad ny %q on line %d", dims[2], s.line)
	}
	if g.NZ, err = strconv.Atoi(dims[3]); err != nil {
		return nil, fmt.Errorf("vip: bad nz %q on line %d", dims[3], s.line)
	}
	if g.NX < 1 || g.NY < 1 || g.NZ < 1 {
		return nil, fmt.Errorf("vip: grid dimensions %dx%dx%d are not positive", g.NX, g.NY, g.NZ)
	}
	monitoring.Logf("vip: grid %dx%dx%d", g.NX, g.NY, g.NZ)

	if err := s.skipToColumn0("CORP"); err != nil {
		return nil, fmt.Errorf("vip: missing CORP section: %w", err)
	}
	if err := g.parseCoordinates(s); err != nil {
		return nil, fmt.Errorf("vip: CORP: %w", err)
	}

	if err := s.skipToColumn0("LIVECELL"); err != nil {
		return nil, fmt.Errorf("vip: missing LIVECELL section: %w", err)
	}
	mask, err := g.parseRows(s, false)
	if err != nil {
		return nil, fmt.Errorf("vip: LIVECELL: %w", err)
	}
	g.Properties[MaskKey] = mask

	for {
		fields, err := s.nextFields()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, fmt.Errorf("vip: %w", err)
		}
		if len(fields) < 2 || fields[1] != "VALUE" {
			continue
		}
		key := fields[0]
		prop, err := g.parseRows(s, true)
		if err != nil {
			monitoring.Logf("vip: property %q failed to parse, stopping: %v", key, err)
			return g, nil
		}
		g.Properties[key] = prop
		monitoring.Logf("vip: property %q loaded", key)
	}
}

// parseCoordinates reads the corner point section: per layer a three line
// header, then one cell per NX*NY with four lines of two corner points each.
// The cell center is the mean of its eight corners.
func (g *CornerGrid) parseCoordinates(s *vipScanner) error {
	n := g.cells()
	g.X = make([]float64, n)
	g.Y = make([]float64, n)
	g.Z = make([]float64, n)

	for z := 0; z < g.NZ; z++ {
		for i := 0; i < 3; i++ {
			if _, err := s.nextFields(); err != nil {
				return fmt.Errorf("layer %d header: %w", z, err)
			}
		}
		for y := 0; y < g.NY; y++ {
			for x := 0; x < g.NX; x++ {
				var sx, sy, sz float64
				for l := 0; l < 4; l++ {
					vals, err := s.nextFloats(6)
					if err != nil {
						return fmt.Errorf("cell (%d,%d,%d): %w", x, y, z, err)
					}
					sx += vals[0] + vals[3]
					sy += vals[1] + vals[4]
					sz += vals[2] + vals[5]
				}
				i := g.idx(x, y, z)
				g.X[i] = sx / 8
				g.Y[i] = sy / 8
				g.Z[i] = sz / 8
			}
		}
	}
	return nil
}

// parseRows reads one value per cell, NX values per row, rows ordered y then
// z. layerHeader selects the three line header VALUE blocks carry per layer.
func (g *CornerGrid) parseRows(s *vipScanner, layerHeader bool) ([]float64, error) {
	out := make([]float64, g.cells())
	for z := 0; z < g.NZ; z++ {
		if layerHeader {
			for i := 0; i < 3; i++ {
				if _, err := s.nextFields(); err != nil {
					return nil, fmt.Errorf("layer %d header: %w", z, err)
				}
			}
		}
		for y := 0; y < g.NY; y++ {
			row, err := s.nextFloats(g.NX)
			if err != nil {
				return nil, fmt.Errorf("row (y=%d, z=%d): %w", y, z, err)
			}
			copy(out[g.idx(0, y, z):g.idx(0, y, z)+g.NX], row)
		}
	}
	return out, nil
}

// vipScanner is a line scanner that skips blank and "C" comment lines and
// can assemble fixed-size float rows spanning several lines.
type vipScanner struct {
	sc   *bufio.Scanner
	line int
}

// nextFields returns the fields of the next non-blank, non-comment line.
func (s *vipScanner) nextFields() ([]string, error) {
	for s.sc.Scan() {
		s.line++
		fields := strings.Fields(s.sc.Text())
		if len(fields) == 0 || fields[0] == "C" {
			continue
		}
		return fields, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// nextFloats collects exactly n floats from one or more lines.
func (s *vipScanner) nextFloats(n int) ([]float64, error) {
	out := make([]float64, 0, n)
	for len(out) < n {
		fields, err := s.nextFields()
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if len(out) == n {
				return nil, fmt.Errorf("line %d: row overrun, want %d values", s.line, n)
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad value %q", s.line, f)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// skipToColumn0 advances until a line whose first field equals key.
func (s *vipScanner) skipToColumn0(key string) error {
	for {
		fields, err := s.nextFields()
		if err != nil {
			return err
		}
		if fields[0] == key {
			return nil
		}
	}
}

// skipToColumn1 advances until a line whose second field equals key.
func (s *vipScanner) skipToColumn1(key string) error {
	for {
		fields, err := s.nextFields()
		if err != nil {
			return err
		}
		if len(fields) > 1 && fields[1] == key {
			return nil
		}
	}
}
