// Package boxdb persists run bookkeeping to sqlite: engine lifecycle events,
// calibration change snapshots and per-cycle frame statistics.
package boxdb

import (
	"bytes"
	"database/sql"
	_ "embed"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/terrabox-data/relief.live/internal/calib"
	"github.com/terrabox-data/relief.live/internal/monitoring"
)

type BoxDB struct {
	*sql.DB
}

// schema.sql defines tables for runs, engine events, calibration snapshots
// and frame statistics.
//
//go:embed schema.sql
var schemaSQL string

// Open opens (creating if necessary) the sandbox database at path. Use
// ":memory:" for tests.
func Open(path string) (*BoxDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, err
	}

	monitoring.Logf("initialized sandbox database schema at %s", path)
	return &BoxDB{db}, nil
}

// StartRun creates a run record and returns its id.
func (b *BoxDB) StartRun(module, sensor, notes string) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO runs (id, module, sensor, notes)
		VALUES (?, ?, ?, ?)
	`
	if _, err := b.Exec(query, id, module, sensor, notes); err != nil {
		return "", fmt.Errorf("failed to start run: %v", err)
	}
	return id, nil
}

// EndRun stamps a run's end time.
func (b *BoxDB) EndRun(runID string) error {
	query := `
		UPDATE runs SET end_timestamp = UNIXEPOCH('subsec') WHERE id = ?
	`
	if _, err := b.Exec(query, runID); err != nil {
		return fmt.Errorf("failed to end run: %v", err)
	}
	return nil
}

// RecordEngineEvent stores one engine lifecycle transition.
func (b *BoxDB) RecordEngineEvent(runID, module, event string) error {
	query := `
		INSERT INTO engine_events (run_id, module, event)
		VALUES (?, ?, ?)
	`
	if _, err := b.Exec(query, runID, module, event); err != nil {
		return fmt.Errorf("failed to insert engine event: %v", err)
	}
	return nil
}

// RecordCalibration stores the full calibration as a JSON snapshot, so every
// runtime mutation leaves an auditable trail.
func (b *BoxDB) RecordCalibration(runID string, c *calib.CalibrationData) error {
	var buf bytes.Buffer
	if err := c.SaveTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize calibration: %v", err)
	}
	query := `
		INSERT INTO calibration_events (run_id, snapshot)
		VALUES (?, ?)
	`
	if _, err := b.Exec(query, runID, buf.String()); err != nil {
		return fmt.Errorf("failed to insert calibration event: %v", err)
	}
	return nil
}

// RecordFrameStats stores one cycle's depth extremes.
func (b *BoxDB) RecordFrameStats(runID string, seq uint64, depthMin, depthMax float64) error {
	query := `
		INSERT INTO frame_stats (run_id, seq, depth_min, depth_max)
		VALUES (?, ?, ?, ?)
	`
	if _, err := b.Exec(query, runID, int64(seq), depthMin, depthMax); err != nil {
		return fmt.Errorf("failed to insert frame stats: %v", err)
	}
	return nil
}

// EngineEvent represents a stored lifecycle transition.
type EngineEvent struct {
	ID             int64   `json:"id"`
	RunID          string  `json:"run_id"`
	Module         string  `json:"module"`
	Event          string  `json:"event"`
	WriteTimestamp float64 `json:"write_timestamp"`
}

// RecentEngineEvents retrieves the most recent engine events for a run.
func (b *BoxDB) RecentEngineEvents(runID string, limit int) ([]EngineEvent, error) {
	query := `
		SELECT id, run_id, module, event, write_timestamp
		FROM engine_events
		WHERE run_id = ?
		ORDER BY write_timestamp DESC
		LIMIT ?
	`
	rows, err := b.Query(query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query engine events: %v", err)
	}
	defer rows.Close()

	var events []EngineEvent
	for rows.Next() {
		var ev EngineEvent
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Module, &ev.Event, &ev.WriteTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan engine event row: %v", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FrameStat represents one cycle's stored depth extremes.
type FrameStat struct {
	ID             int64   `json:"id"`
	RunID          string  `json:"run_id"`
	Seq            int64   `json:"seq"`
	DepthMin       float64 `json:"depth_min"`
	DepthMax       float64 `json:"depth_max"`
	WriteTimestamp float64 `json:"write_timestamp"`
}

// RecentFrameStats retrieves the most recent frame statistics for a run.
func (b *BoxDB) RecentFrameStats(runID string, limit int) ([]FrameStat, error) {
	query := `
		SELECT id, run_id, seq, depth_min, depth_max, write_timestamp
		FROM frame_stats
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := b.Query(query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame stats: %v", err)
	}
	defer rows.Close()

	var stats []FrameStat
	for rows.Next() {
		var st FrameStat
		if err := rows.Scan(&st.ID, &st.RunID, &st.Seq, &st.DepthMin, &st.DepthMax, &st.WriteTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan frame stats row: %v", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RunSink adapts a run-scoped BoxDB to the engine's EventSink and the
// renderer's StatsRecorder. Insert failures are logged, never propagated
// into the engine loop.
type RunSink struct {
	DB    *BoxDB
	RunID string

	seq uint64
}

func (s *RunSink) EngineEvent(module, event string) {
	if err := s.DB.RecordEngineEvent(s.RunID, module, event); err != nil {
		monitoring.Logf("boxdb: %v", err)
	}
}

// FrameStats persists one cycle's depth extremes under an increasing
// sequence number.
func (s *RunSink) FrameStats(depthMin, depthMax float64) {
	seq := atomic.AddUint64(&s.seq, 1)
	if err := s.DB.RecordFrameStats(s.RunID, seq, depthMin, depthMax); err != nil {
		monitoring.Logf("boxdb: %v", err)
	}
}
