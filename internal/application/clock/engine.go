// Package clock computes a session's elapsed time from its checkpoint and
// picks the tick cadence from the timer's visibility.
package clock

import (
	"time"

	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

// Mode is the engine's scheduling state.
type Mode string

const (
	ModeStopped    Mode = "stopped"
	ModeForeground Mode = "foreground"
	ModeBackground Mode = "background"
)

// Engine derives elapsed seconds from a checkpoint and owns the active
// TickScheduler. It is not safe for concurrent use; the session controller
// drives it from a single goroutine.
type Engine struct {
	foreground TickScheduler
	background TickScheduler

	cp      *session.Checkpoint
	highest int
	mode    Mode
	ticks   <-chan time.Time
}

// NewEngine returns a stopped engine with no checkpoint.
func NewEngine(foreground, background TickScheduler) *Engine {
	return &Engine{
		foreground: foreground,
		background: background,
		mode:       ModeStopped,
	}
}

// SetCheckpoint replaces the checkpoint. The monotonic floor is kept for
// the same session and reset for a different one.
func (e *Engine) SetCheckpoint(cp *session.Checkpoint) {
	if cp == nil || e.cp == nil || e.cp.SessionID != cp.SessionID {
		e.highest = 0
	}
	e.cp = cp
	if cp == nil {
		e.Stop()
	}
}

// Checkpoint returns the current checkpoint, which callers may mutate
// only from the engine's goroutine.
func (e *Engine) Checkpoint() *session.Checkpoint {
	return e.cp
}

// Elapsed returns the elapsed seconds at now. It never returns less than a
// value it has already returned for the current session.
func (e *Engine) Elapsed(now time.Time) int {
	if e.cp == nil {
		return 0
	}
	v := e.cp.Elapsed(now)
	if v < e.highest {
		return e.highest
	}
	e.highest = v
	return v
}

// Pause freezes the checkpoint at the current elapsed value and stops
// ticking.
func (e *Engine) Pause(now time.Time) int {
	if e.cp == nil {
		return 0
	}
	v := e.Elapsed(now)
	e.cp.Pause(now)
	e.cp.BaseElapsedSeconds = v
	e.Stop()
	return v
}

// Resume restarts the checkpoint from its frozen value and resumes ticking
// with the strategy matching visible.
func (e *Engine) Resume(now time.Time, visible bool) {
	if e.cp == nil {
		return
	}
	e.cp.Resume(now)
	e.Run(visible)
}

// Reanchor moves the checkpoint anchor to a confirmed value at `at`.
func (e *Engine) Reanchor(at time.Time, confirmed int) {
	if e.cp == nil {
		return
	}
	if confirmed < e.highest {
		confirmed = e.highest
	}
	e.cp.Reanchor(at, confirmed)
}

// Run starts ticking. With no checkpoint, or a paused one, the engine stays
// stopped.
func (e *Engine) Run(visible bool) {
	if e.cp == nil || e.cp.Paused {
		e.Stop()
		return
	}
	want := ModeBackground
	if visible {
		want = ModeForeground
	}
	if e.mode == want {
		return
	}
	e.Stop()
	if want == ModeForeground {
		e.ticks = e.foreground.Start()
	} else {
		e.ticks = e.background.Start()
	}
	e.mode = want
}

// SetVisible switches the tick strategy if the engine is running.
func (e *Engine) SetVisible(visible bool) {
	if e.mode == ModeStopped {
		return
	}
	e.Run(visible)
}

// Stop halts ticking.
func (e *Engine) Stop() {
	switch e.mode {
	case ModeForeground:
		e.foreground.Stop()
	case ModeBackground:
		e.background.Stop()
	}
	e.mode = ModeStopped
	e.ticks = nil
}

// Mode returns the scheduling state.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Ticks returns the active tick channel, or nil while stopped. A receive
// from a nil channel blocks forever, so a stopped engine never ticks.
func (e *Engine) Ticks() <-chan time.Time {
	return e.ticks
}

// SchedulerName returns the active strategy name, or "" while stopped.
func (e *Engine) SchedulerName() string {
	switch e.mode {
	case ModeForeground:
		return e.foreground.Name()
	case ModeBackground:
		return e.background.Name()
	}
	return ""
}
