// Package engine runs a visualization module in a dedicated worker
// goroutine with pause/resume/stop semantics. The engine's lock is held for
// the full duration of one update cycle; configuration writers pause the
// engine, mutate shared state, then resume, which preserves full-cycle
// mutual exclusion without per-field locking.
package engine

import (
	"sync"
	"time"

	"github.com/terrabox-data/relief.live/internal/monitoring"
	"github.com/terrabox-data/relief.live/internal/timeutil"
)

// Module is one per-cycle visualization operation. Setup runs once before
// the first update; Update is invoked repeatedly under the engine lock while
// the engine is running.
type Module interface {
	Name() string
	Setup() error
	Update() error
}

// State is the engine lifecycle state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// EventSink receives lifecycle transitions, e.g. for persistence. May be nil.
type EventSink interface {
	EngineEvent(module, event string)
}

// Engine drives a Module's update loop. The zero value is not usable; use
// New.
type Engine struct {
	module Module
	sink   EventSink

	// MaxConsecutiveErrors stops the loop after this many update failures in
	// a row; zero means the loop only ever logs and keeps going.
	MaxConsecutiveErrors int

	// CycleInterval paces the worker: the loop sleeps this long between
	// cycles, outside the cycle lock. Zero runs back to back.
	CycleInterval time.Duration

	// Clock is the time source for pacing; swapped for a mock in tests.
	Clock timeutil.Clock

	mu sync.Mutex // full-cycle lock, also guards state below

	state State
	done  chan struct{} // closed by the worker on exit; nil when stopped
}

// New creates an engine for the given module. sink may be nil.
func New(m Module, sink EventSink) *Engine {
	return &Engine{module: m, sink: sink, Clock: timeutil.RealClock{}}
}

// Module returns the module this engine drives.
func (e *Engine) Module() Module { return e.module }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run starts the worker loop. Calling Run while already running is a benign
// no-op.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		monitoring.Logf("engine %s: already running", e.module.Name())
		return
	}
	e.state = Running
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	go e.loop(done)
	e.event("run")
	monitoring.Logf("engine %s: worker started", e.module.Name())
}

// loop is the worker body: acquire the lock, run one update, release, until
// the state leaves Running. An in-flight update always completes; there is
// no mid-cycle cancellation.
func (e *Engine) loop(done chan struct{}) {
	defer close(done)
	consecutive := 0
	for {
		e.mu.Lock()
		if e.state != Running {
			e.mu.Unlock()
			return
		}
		err := e.module.Update()
		e.mu.Unlock()

		if err != nil {
			consecutive++
			monitoring.Logf("engine %s: update failed (%d consecutive): %v", e.module.Name(), consecutive, err)
			if e.MaxConsecutiveErrors > 0 && consecutive >= e.MaxConsecutiveErrors {
				monitoring.Logf("engine %s: stopping after %d consecutive update failures", e.module.Name(), consecutive)
				e.mu.Lock()
				e.state = Stopped
				e.mu.Unlock()
				e.event("error_stop")
				return
			}
		} else {
			consecutive = 0
		}

		if e.CycleInterval > 0 {
			e.Clock.Sleep(e.CycleInterval)
		}
	}
}

// Pause flips the engine to Paused and blocks until the worker has fully
// exited its loop. Once Pause returns, no further update can start until
// Resume. No-op when not running.
func (e *Engine) Pause() {
	e.transitionAndJoin(Paused, "pause", Running)
}

// Stop flips the engine to Stopped and joins the worker. Terminal until the
// next Run. No-op when already stopped.
func (e *Engine) Stop() {
	e.transitionAndJoin(Stopped, "stop", Running, Paused)
}

// Resume restarts the loop from Paused. Resuming a stopped engine is a
// logged no-op; resuming a running engine likewise.
func (e *Engine) Resume() {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	switch state {
	case Paused:
		e.Run()
	case Running:
		monitoring.Logf("engine %s: already running", e.module.Name())
	default:
		monitoring.Logf("engine %s: cannot resume, engine is stopped", e.module.Name())
	}
}

// WithLock runs fn while holding the engine's cycle lock. Intended for
// setters that must not race an in-flight update when the caller chooses not
// to pause.
func (e *Engine) WithLock(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// transitionAndJoin moves to target if the current state is one of from,
// then waits for the worker goroutine to exit.
func (e *Engine) transitionAndJoin(target State, event string, from ...State) {
	e.mu.Lock()
	ok := false
	for _, f := range from {
		if e.state == f {
			ok = true
			break
		}
	}
	if !ok {
		state := e.state
		e.mu.Unlock()
		monitoring.Logf("engine %s: %s ignored, engine is %s", e.module.Name(), event, state)
		return
	}
	wasRunning := e.state == Running
	e.state = target
	done := e.done
	e.mu.Unlock()

	// Join: the worker observes the flag at the top of its next cycle. A
	// paused engine has no live worker, so only join after Running.
	if wasRunning && done != nil {
		<-done
	}
	e.event(event)
	monitoring.Logf("engine %s: %s", e.module.Name(), target)
}

func (e *Engine) event(name string) {
	if e.sink != nil {
		e.sink.EngineEvent(e.module.Name(), name)
	}
}
