package boxdb

import (
	"testing"

	"github.com/terrabox-data/relief.live/internal/calib"
)

func openTestDB(t *testing.T) *BoxDB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStartAndEndRun(t *testing.T) {
	db := openTestDB(t)

	id, err := db.StartRun("topography", "synthetic", "test run")
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	if id == "" {
		t.Fatal("StartRun() returned empty id")
	}

	var end *float64
	if err := db.QueryRow(`SELECT end_timestamp FROM runs WHERE id = ?`, id).Scan(&end); err != nil {
		t.Fatalf("run row missing: %v", err)
	}
	if end != nil {
		t.Error("end_timestamp set before EndRun")
	}

	if err := db.EndRun(id); err != nil {
		t.Fatalf("EndRun() error: %v", err)
	}
	if err := db.QueryRow(`SELECT end_timestamp FROM runs WHERE id = ?`, id).Scan(&end); err != nil {
		t.Fatal(err)
	}
	if end == nil {
		t.Error("end_timestamp still null after EndRun")
	}
}

func TestEngineEventsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun("topography", "synthetic", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, ev := range []string{"run", "pause", "run", "stop"} {
		if err := db.RecordEngineEvent(runID, "topography", ev); err != nil {
			t.Fatalf("RecordEngineEvent(%s) error: %v", ev, err)
		}
	}

	events, err := db.RecentEngineEvents(runID, 10)
	if err != nil {
		t.Fatalf("RecentEngineEvents() error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for _, ev := range events {
		if ev.RunID != runID || ev.Module != "topography" {
			t.Errorf("event %+v carries wrong run or module", ev)
		}
	}
}

func TestEngineEventsScopedToRun(t *testing.T) {
	db := openTestDB(t)
	a, _ := db.StartRun("topography", "synthetic", "")
	b, _ := db.StartRun("volume-lookup", "synthetic", "")

	if err := db.RecordEngineEvent(a, "topography", "run"); err != nil {
		t.Fatal(err)
	}
	events, err := db.RecentEngineEvents(b, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("run %s sees %d foreign events", b, len(events))
	}
}

func TestRecordCalibration(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun("topography", "synthetic", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.RecordCalibration(runID, calib.NewCalibrationData()); err != nil {
		t.Fatalf("RecordCalibration() error: %v", err)
	}

	var snapshot string
	if err := db.QueryRow(
		`SELECT snapshot FROM calibration_events WHERE run_id = ?`, runID,
	).Scan(&snapshot); err != nil {
		t.Fatalf("calibration row missing: %v", err)
	}
	if snapshot == "" {
		t.Error("stored calibration snapshot is empty")
	}
}

func TestFrameStatsOrderedBySeq(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun("topography", "synthetic", "")
	if err != nil {
		t.Fatal(err)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		if err := db.RecordFrameStats(runID, seq, 1000+float64(seq), 1300); err != nil {
			t.Fatalf("RecordFrameStats(%d) error: %v", seq, err)
		}
	}

	stats, err := db.RecentFrameStats(runID, 3)
	if err != nil {
		t.Fatalf("RecentFrameStats() error: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d stats, want 3", len(stats))
	}
	// Newest first.
	for i, wantSeq := range []int64{5, 4, 3} {
		if stats[i].Seq != wantSeq {
			t.Errorf("stats[%d].Seq = %d, want %d", i, stats[i].Seq, wantSeq)
		}
	}
	if stats[0].DepthMin != 1005 {
		t.Errorf("stats[0].DepthMin = %f, want 1005", stats[0].DepthMin)
	}
}

func TestRunSinkRecordsEvents(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun("topography", "synthetic", "")
	if err != nil {
		t.Fatal(err)
	}

	sink := &RunSink{DB: db, RunID: runID}
	sink.EngineEvent("topography", "run")
	sink.EngineEvent("topography", "stop")

	events, err := db.RecentEngineEvents(runID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events via sink, want 2", len(events))
	}
}

func TestRunSinkRecordsFrameStats(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun("topography", "synthetic", "")
	if err != nil {
		t.Fatal(err)
	}

	sink := &RunSink{DB: db, RunID: runID}
	sink.FrameStats(1000, 1200)
	sink.FrameStats(1010, 1250)

	stats, err := db.RecentFrameStats(runID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats via sink, want 2", len(stats))
	}
	// Newest first, sequence assigned by the sink.
	if stats[0].Seq != 2 || stats[0].DepthMin != 1010 || stats[0].DepthMax != 1250 {
		t.Errorf("stats[0] = %+v, want seq 2 with [1010, 1250]", stats[0])
	}
	if stats[1].Seq != 1 {
		t.Errorf("stats[1].Seq = %d, want 1", stats[1].Seq)
	}
}
