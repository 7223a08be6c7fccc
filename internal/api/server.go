// Package api exposes the HTTP control surface: engine lifecycle, runtime
// calibration, volume lookup controls and a debugging chart of the latest
// rendered scene.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/terrabox-data/relief.live/internal/boxdb"
	"github.com/terrabox-data/relief.live/internal/calib"
	"github.com/terrabox-data/relief.live/internal/engine"
	"github.com/terrabox-data/relief.live/internal/httputil"
	"github.com/terrabox-data/relief.live/internal/monitoring"
	"github.com/terrabox-data/relief.live/internal/relief"
	"github.com/terrabox-data/relief.live/internal/render"
	"github.com/terrabox-data/relief.live/internal/security"
	"github.com/terrabox-data/relief.live/internal/version"
	"github.com/terrabox-data/relief.live/internal/volume"
)

// WebServer handles the HTTP interface for controlling a running sandbox.
type WebServer struct {
	address string
	server  *http.Server

	engine *engine.Engine
	calib  *calib.CalibrationData
	scale  *calib.Scale
	grid   *calib.Grid

	// At most one of these is non-nil, depending on the module the engine
	// drives.
	topo   *relief.Module
	lookup *volume.LookupModule

	snapshot *render.Snapshot

	db    *boxdb.BoxDB
	runID string
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string

	Engine *engine.Engine
	Calib  *calib.CalibrationData
	Scale  *calib.Scale
	Grid   *calib.Grid

	Topo   *relief.Module
	Lookup *volume.LookupModule

	Snapshot *render.Snapshot

	DB    *boxdb.BoxDB // optional
	RunID string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		engine:   config.Engine,
		calib:    config.Calib,
		scale:    config.Scale,
		grid:     config.Grid,
		topo:     config.Topo,
		lookup:   config.Lookup,
		snapshot: config.Snapshot,
		db:       config.DB,
		runID:    config.RunID,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/engine", ws.handleEngineState)
	mux.HandleFunc("/api/engine/run", ws.handleEngineTransition("run"))
	mux.HandleFunc("/api/engine/pause", ws.handleEngineTransition("pause"))
	mux.HandleFunc("/api/engine/resume", ws.handleEngineTransition("resume"))
	mux.HandleFunc("/api/engine/stop", ws.handleEngineTransition("stop"))
	mux.HandleFunc("/api/calib", ws.handleCalib)
	mux.HandleFunc("/api/calib/save", ws.handleCalibSave)
	mux.HandleFunc("/api/calib/load", ws.handleCalibLoad)
	mux.HandleFunc("/api/topo/contours", ws.handleTopoContours)
	mux.HandleFunc("/api/block/dataset", ws.handleBlockDataset)
	mux.HandleFunc("/api/block/threshold", ws.handleBlockThreshold)
	mux.HandleFunc("/api/block/contours", ws.handleBlockContours)
	mux.HandleFunc("/api/block/offsets", ws.handleBlockOffsets)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/chart/depth", ws.handleDepthChart)

	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	httputil.WriteJSONOK(w, v)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "relief", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleEngineState reports the engine's lifecycle state and module name.
func (ws *WebServer) handleEngineState(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{
		"module": ws.engine.Module().Name(),
		"state":  ws.engine.State().String(),
	})
}

// handleEngineTransition returns a POST handler applying one lifecycle verb.
func (ws *WebServer) handleEngineTransition(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
			return
		}
		switch verb {
		case "run":
			ws.engine.Run()
		case "pause":
			ws.engine.Pause()
		case "resume":
			ws.engine.Resume()
		case "stop":
			ws.engine.Stop()
		}
		ws.writeJSON(w, map[string]string{"state": ws.engine.State().String()})
	}
}

// calibPatch carries a partial calibration update. Nil fields are left
// untouched, mirroring the tuning config convention.
type calibPatch struct {
	PFrameTop    *int `json:"p_frame_top,omitempty"`
	PFrameLeft   *int `json:"p_frame_left,omitempty"`
	PFrameWidth  *int `json:"p_frame_width,omitempty"`
	PFrameHeight *int `json:"p_frame_height,omitempty"`

	STop    *int `json:"s_top,omitempty"`
	SRight  *int `json:"s_right,omitempty"`
	SBottom *int `json:"s_bottom,omitempty"`
	SLeft   *int `json:"s_left,omitempty"`

	SMin *float64 `json:"s_min,omitempty"`
	SMax *float64 `json:"s_max,omitempty"`

	BoxWidth  *float64 `json:"box_width,omitempty"`
	BoxHeight *float64 `json:"box_height,omitempty"`
}

func (p *calibPatch) apply(c *calib.CalibrationData) {
	if p.PFrameTop != nil {
		c.PFrameTop = *p.PFrameTop
	}
	if p.PFrameLeft != nil {
		c.PFrameLeft = *p.PFrameLeft
	}
	if p.PFrameWidth != nil {
		c.PFrameWidth = *p.PFrameWidth
	}
	if p.PFrameHeight != nil {
		c.PFrameHeight = *p.PFrameHeight
	}
	if p.STop != nil {
		c.STop = *p.STop
	}
	if p.SRight != nil {
		c.SRight = *p.SRight
	}
	if p.SBottom != nil {
		c.SBottom = *p.SBottom
	}
	if p.SLeft != nil {
		c.SLeft = *p.SLeft
	}
	if p.SMin != nil {
		c.SMin = *p.SMin
	}
	if p.SMax != nil {
		c.SMax = *p.SMax
	}
	if p.BoxWidth != nil {
		c.BoxWidth = *p.BoxWidth
	}
	if p.BoxHeight != nil {
		c.BoxHeight = *p.BoxHeight
	}
}

// handleCalib serves the current calibration on GET and applies a partial
// update on PATCH. Updates follow the pause-mutate-resume protocol: the
// engine pauses, the patch lands, derived scale and lattice recompute, and
// the engine resumes only if it was running before. An invalid patch is
// rolled back wholesale.
func (ws *WebServer) handleCalib(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.writeJSON(w, ws.calib)
	case http.MethodPatch, http.MethodPost:
		var patch calibPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		var invalid error
		ws.withPausedEngine(func() {
			backup := *ws.calib
			patch.apply(ws.calib)
			if err := ws.calib.Validate(); err != nil {
				*ws.calib = backup
				invalid = err
				return
			}
			ws.scale.Calculate()
			ws.grid.RebuildXY()
			if ws.lookup != nil {
				ws.lookup.Rescale()
			}
			monitoring.Logf("api: calibration updated")
			if ws.db != nil {
				if err := ws.db.RecordCalibration(ws.runID, ws.calib); err != nil {
					monitoring.Logf("api: %v", err)
				}
			}
		})
		if invalid != nil {
			ws.writeJSONError(w, http.StatusBadRequest, invalid.Error())
			return
		}
		ws.writeJSON(w, ws.calib)
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or PATCH")
	}
}

type pathRequest struct {
	Path string `json:"path"`
}

// handleCalibSave writes the calibration snapshot to a file on the host.
// Paths are restricted to the working directory and the temp directory.
func (ws *WebServer) handleCalibSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		ws.writeJSONError(w, http.StatusBadRequest, `body must be {"path": "..."}`)
		return
	}
	if err := security.ValidateExportPath(req.Path); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.calib.Save(req.Path); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, map[string]string{"saved": req.Path})
}

// handleCalibLoad replaces the calibration from a snapshot file, with the
// same pause protocol and rollback guarantees as a PATCH.
func (ws *WebServer) handleCalibLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		ws.writeJSONError(w, http.StatusBadRequest, `body must be {"path": "..."}`)
		return
	}
	if err := security.ValidateExportPath(req.Path); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var loadErr error
	ws.withPausedEngine(func() {
		loadErr = ws.calib.Load(req.Path)
		if loadErr != nil {
			return
		}
		ws.scale.Calculate()
		ws.grid.RebuildXY()
		if ws.lookup != nil {
			ws.lookup.Rescale()
		}
		if ws.db != nil {
			if err := ws.db.RecordCalibration(ws.runID, ws.calib); err != nil {
				monitoring.Logf("api: %v", err)
			}
		}
	})

	if loadErr != nil {
		ws.writeJSONError(w, http.StatusBadRequest, loadErr.Error())
		return
	}
	ws.writeJSON(w, ws.calib)
}

// handleTopoContours adjusts the topography module's contour spacing and
// colormap.
func (ws *WebServer) handleTopoContours(w http.ResponseWriter, r *http.Request) {
	if ws.topo == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no topography module configured")
		return
	}
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	var req struct {
		Step     *float64 `json:"step,omitempty"`
		Colormap *string  `json:"colormap,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	ws.withPausedEngine(func() {
		if req.Step != nil {
			ws.topo.SetContourStep(*req.Step)
		}
		if req.Colormap != nil {
			ws.topo.SetColormap(*req.Colormap)
		}
	})
	ws.writeJSON(w, map[string]string{"status": "ok"})
}

// handleBlockDataset lists datasets on GET and switches the displayed one on
// POST.
func (ws *WebServer) handleBlockDataset(w http.ResponseWriter, r *http.Request) {
	if ws.lookup == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no volume lookup module configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		ws.writeJSON(w, map[string]interface{}{
			"current":  ws.lookup.Dataset(),
			"datasets": ws.lookup.Datasets(),
		})
	case http.MethodPost:
		var req struct {
			Dataset string `json:"dataset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dataset == "" {
			ws.writeJSONError(w, http.StatusBadRequest, `body must be {"dataset": "..."}`)
			return
		}
		var err error
		ws.withPausedEngine(func() {
			err = ws.lookup.SetDataset(req.Dataset)
		})
		if err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.writeJSON(w, map[string]string{"current": ws.lookup.Dataset()})
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

// handleBlockThreshold adjusts the mask threshold.
func (ws *WebServer) handleBlockThreshold(w http.ResponseWriter, r *http.Request) {
	if ws.lookup == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no volume lookup module configured")
		return
	}
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	var req struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		ws.writeJSONError(w, http.StatusBadRequest, `body must be {"threshold": 0..1}`)
		return
	}
	if *req.Threshold < 0 || *req.Threshold > 1 {
		ws.writeJSONError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
		return
	}
	ws.withPausedEngine(func() {
		ws.lookup.SetMaskThreshold(*req.Threshold)
	})
	ws.writeJSON(w, map[string]float64{"threshold": *req.Threshold})
}

// handleBlockContours adjusts contour counts and the reservoir top overlay.
func (ws *WebServer) handleBlockContours(w http.ResponseWriter, r *http.Request) {
	if ws.lookup == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no volume lookup module configured")
		return
	}
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	var req struct {
		Steps            *int  `json:"steps,omitempty"`
		ReservoirSteps   *int  `json:"reservoir_steps,omitempty"`
		ShowReservoirTop *bool `json:"show_reservoir_top,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	ws.withPausedEngine(func() {
		if req.Steps != nil {
			ws.lookup.SetContourSteps(*req.Steps)
		}
		if req.ReservoirSteps != nil {
			ws.lookup.SetReservoirContours(*req.ReservoirSteps)
		}
		if req.ShowReservoirTop != nil {
			ws.lookup.ShowReservoirTop(*req.ShowReservoirTop)
		}
	})
	ws.writeJSON(w, map[string]string{"status": "ok"})
}

// handleBlockOffsets shifts the usable depth window at runtime.
func (ws *WebServer) handleBlockOffsets(w http.ResponseWriter, r *http.Request) {
	if ws.lookup == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no volume lookup module configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		top, bottom, position := ws.lookup.SensorOffsets()
		ws.writeJSON(w, map[string]float64{"top": top, "bottom": bottom, "position": position})
	case http.MethodPost:
		var req struct {
			Top      *float64 `json:"top,omitempty"`
			Bottom   *float64 `json:"bottom,omitempty"`
			Position *float64 `json:"position,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		top, bottom, position := ws.lookup.SensorOffsets()
		if req.Top != nil {
			top = *req.Top
		}
		if req.Bottom != nil {
			bottom = *req.Bottom
		}
		if req.Position != nil {
			position = *req.Position
		}
		ws.withPausedEngine(func() {
			ws.lookup.SetSensorOffsets(top, bottom, position)
		})
		ws.writeJSON(w, map[string]float64{"top": top, "bottom": bottom, "position": position})
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

// handleStats returns the most recent engine events and frame statistics.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no database configured")
		return
	}
	events, err := ws.db.RecentEngineEvents(ws.runID, 50)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := ws.db.RecentFrameStats(ws.runID, 50)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, map[string]interface{}{
		"run_id":      ws.runID,
		"events":      events,
		"frame_stats": stats,
	})
}

// withPausedEngine runs fn under the pause-mutate-resume protocol, resuming
// only if the engine was running beforehand.
func (ws *WebServer) withPausedEngine(fn func()) {
	wasRunning := ws.engine.State() == engine.Running
	if wasRunning {
		ws.engine.Pause()
	}
	fn()
	if wasRunning {
		ws.engine.Resume()
	}
}
