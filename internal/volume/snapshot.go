package volume

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// Snapshot files carry a prepared BlockSet, gob-encoded and gzipped, so the
// expensive regridding runs once offline and the daemon only loads its
// result.

// SaveSnapshot writes the block set to path.
func SaveSnapshot(bs *BlockSet, path string) error {
	if err := bs.Validate(); err != nil {
		return fmt.Errorf("block snapshot: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("block snapshot: %w", err)
	}
	defer f.Close()
	if err := WriteSnapshot(bs, f); err != nil {
		return fmt.Errorf("block snapshot %s: %w", path, err)
	}
	monitoring.Logf("block snapshot saved to %s (%d datasets)", path, len(bs.Datasets))
	return nil
}

// WriteSnapshot encodes the block set to w.
func WriteSnapshot(bs *BlockSet, w io.Writer) error {
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(bs); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// LoadSnapshot reads a block set from path and validates it.
func LoadSnapshot(path string) (*BlockSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("block snapshot: %w", err)
	}
	defer f.Close()
	bs, err := ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("block snapshot %s: %w", path, err)
	}
	monitoring.Logf("block snapshot loaded from %s (%d datasets)", path, len(bs.Datasets))
	return bs, nil
}

// ReadSnapshot decodes a block set from r.
func ReadSnapshot(r io.Reader) (*BlockSet, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var bs BlockSet
	if err := gob.NewDecoder(zr).Decode(&bs); err != nil {
		return nil, err
	}
	if err := bs.Validate(); err != nil {
		return nil, err
	}
	return &bs, nil
}
