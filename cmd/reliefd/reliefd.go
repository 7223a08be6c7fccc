package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/terrabox-data/relief.live/internal/api"
	"github.com/terrabox-data/relief.live/internal/boxdb"
	"github.com/terrabox-data/relief.live/internal/calib"
	"github.com/terrabox-data/relief.live/internal/config"
	"github.com/terrabox-data/relief.live/internal/engine"
	"github.com/terrabox-data/relief.live/internal/relief"
	"github.com/terrabox-data/relief.live/internal/render"
	"github.com/terrabox-data/relief.live/internal/sensor"
	"github.com/terrabox-data/relief.live/internal/version"
	"github.com/terrabox-data/relief.live/internal/volume"
)

var (
	listen     = flag.String("listen", ":8081", "HTTP listen address")
	module     = flag.String("module", "topo", "visualization module: 'topo' or 'block'")
	calibFile  = flag.String("calib", "", "calibration snapshot to load at startup (JSON)")
	configFile = flag.String("config", "", "tuning config file (JSON)")
	blockFile  = flag.String("blocks", "", "block snapshot for the 'block' module (from relief-regrid)")
	pngDir     = flag.String("png-dir", "", "write rendered frames as PNGs into this directory")
	dbFile     = flag.String("db", "relief_data.db", "path to the SQLite database file")
	notes      = flag.String("notes", "", "free-form notes recorded with this run")
	interval   = flag.Duration("interval", 33*time.Millisecond, "pause between update cycles (0 runs back to back)")
)

func main() {
	flag.Parse()

	log.Printf("reliefd %s", version.String())

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	// Calibration: defaults, optionally replaced by a snapshot.
	cal := calib.NewCalibrationData()
	if *calibFile != "" {
		if err := cal.Load(*calibFile); err != nil {
			log.Fatalf("Failed to load calibration: %v", err)
		}
	}

	// The synthetic sensor is the only built-in source; hardware sensors
	// attach through the same interface.
	syn := sensor.SyntheticConfig{
		Width:              cfg.GetSyntheticWidth(),
		Height:             cfg.GetSyntheticHeight(),
		DepthMin:           cfg.GetSyntheticDepthMin(),
		DepthMax:           cfg.GetSyntheticDepthMax(),
		Corners:            cfg.GetSyntheticCorners(),
		Points:             cfg.GetSyntheticPoints(),
		PointsDistance:     cfg.GetSyntheticPointsDistance(),
		AlterationStrength: cfg.GetSyntheticAlteration(),
		Seed:               cfg.GetSyntheticSeed(),
	}
	src := sensor.NewSyntheticSensor(syn)

	filter := sensor.Filter{Frames: cfg.GetFilterFrames(), Sigma: cfg.GetFilterSigma()}

	// Register the sensor resolution before deriving scale and lattice, so
	// the grid starts out consistent with the frames it will receive.
	w, h := src.Resolution()
	cal.RegisterSensor(src.Name(), w, h)
	if err := cal.Validate(); err != nil {
		log.Fatalf("Invalid calibration: %v", err)
	}

	scale := calib.NewScale(cal, true, nil)
	scale.Calculate()
	grid := calib.NewGrid(cal, scale)

	// Renderers: in-memory snapshot for the HTTP chart, plus optional PNGs.
	snapshot := &render.Snapshot{}
	out := render.Multi{snapshot}
	if *pngDir != "" {
		png, err := render.NewPNG(*pngDir)
		if err != nil {
			log.Fatalf("Failed to set up PNG output: %v", err)
		}
		out = append(out, png)
	}

	var (
		mod    engine.Module
		topo   *relief.Module
		lookup *volume.LookupModule
	)
	switch *module {
	case "topo":
		tcfg := relief.Config{
			Filter:      filter,
			Colormap:    cfg.GetColormap(),
			ContourStep: cfg.GetContourStep(),
		}
		topo = relief.New(tcfg, src, cal, scale, grid, out)
		mod = topo
	case "block":
		if *blockFile == "" {
			log.Fatal("the 'block' module requires -blocks")
		}
		set, err := volume.LoadSnapshot(*blockFile)
		if err != nil {
			log.Fatalf("Failed to load block snapshot: %v", err)
		}
		lcfg := volume.LookupConfig{
			Filter:            filter,
			Crop:              true,
			MaskThreshold:     cfg.GetMaskThreshold(),
			ContourSteps:      cfg.GetContourSteps(),
			ReservoirContours: cfg.GetReservoirContours(),
		}
		lookup = volume.NewLookup(lcfg, src, cal, set, out)
		mod = lookup
	default:
		log.Fatalf("unknown module %q (use 'topo' or 'block')", *module)
	}

	// Initialize database
	db, err := boxdb.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open sandbox database: %v", err)
	}
	defer db.Close()

	runID, err := db.StartRun(mod.Name(), src.Name(), *notes)
	if err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}
	defer func() {
		if err := db.EndRun(runID); err != nil {
			log.Printf("Failed to end run: %v", err)
		}
	}()

	// One sink serves both roles: engine lifecycle events and per-cycle
	// frame statistics.
	sink := &boxdb.RunSink{DB: db, RunID: runID}
	switch {
	case topo != nil:
		topo.SetStatsRecorder(sink)
	case lookup != nil:
		lookup.SetStatsRecorder(sink)
	}

	eng := engine.New(mod, sink)
	eng.MaxConsecutiveErrors = cfg.GetMaxConsecutiveErrors()
	eng.CycleInterval = *interval

	if err := mod.Setup(); err != nil {
		log.Fatalf("Module setup failed: %v", err)
	}
	eng.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := api.NewWebServer(api.WebServerConfig{
		Address:  *listen,
		Engine:   eng,
		Calib:    cal,
		Scale:    scale,
		Grid:     grid,
		Topo:     topo,
		Lookup:   lookup,
		Snapshot: snapshot,
		DB:       db,
		RunID:    runID,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	eng.Stop()
	wg.Wait()
	log.Print("shutdown complete")
}
