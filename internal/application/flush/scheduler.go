// Package flush decides when a session's elapsed time and status are
// written to the remote service.
package flush

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/clock"
	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	"github.com/jbctechsolutions/focusvault/internal/application/snapshot"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/tracing"
)

// DefaultWindow is the debounce window for periodic checkpoint writes.
const DefaultWindow = 30 * time.Second

// Flush reasons.
const (
	ReasonDebounced = "debounced"
	ReasonPause     = "pause"
	ReasonResume    = "resume"
	ReasonEnd       = "end"
	ReasonNotes     = "notes"
	ReasonUnload    = "unload"
)

// Result is the outcome of a flush.
type Result struct {
	// Elapsed is the value written.
	Elapsed int
	// Queued is true when the write was queued for replay.
	Queued bool
	// Session is the remote record returned by a delivered write, if any.
	Session *session.Session
}

// Scheduler issues debounced and immediate checkpoint writes. It is not
// safe for concurrent use; the session controller drives it from its event
// loop together with the clock engine it reads.
type Scheduler struct {
	client ports.DurableWriteClient
	engine *clock.Engine
	store  *snapshot.Store
	clock  ports.Clock
	window time.Duration
	tracer *tracing.Tracer
	logger *logging.Logger

	sessionID string
	dueAt     time.Time
}

// NewScheduler creates a scheduler with the given debounce window.
func NewScheduler(
	client ports.DurableWriteClient,
	engine *clock.Engine,
	store *snapshot.Store,
	clk ports.Clock,
	window time.Duration,
	tracer *tracing.Tracer,
	logger *logging.Logger,
) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		client: client,
		engine: engine,
		store:  store,
		clock:  clk,
		window: window,
		tracer: tracer,
		logger: logger,
	}
}

// SetSession points the scheduler at a session and cancels any pending
// debounced flush.
func (s *Scheduler) SetSession(id string) {
	s.sessionID = id
	s.Cancel()
}

// ScheduleDebounced arms a flush one window after now unless one is already
// pending.
func (s *Scheduler) ScheduleDebounced(now time.Time) {
	if s.sessionID == "" || !s.dueAt.IsZero() {
		return
	}
	s.dueAt = now.Add(s.window)
}

// Pending reports whether a debounced flush is armed.
func (s *Scheduler) Pending() bool {
	return !s.dueAt.IsZero()
}

// Due reports whether the pending flush should fire at now.
func (s *Scheduler) Due(now time.Time) bool {
	return !s.dueAt.IsZero() && !now.Before(s.dueAt)
}

// Cancel disarms the pending debounced flush.
func (s *Scheduler) Cancel() {
	s.dueAt = time.Time{}
}

// FlushDebounced fires the pending flush with the current elapsed time.
func (s *Scheduler) FlushDebounced(ctx context.Context) (*Result, error) {
	s.Cancel()
	return s.flush(ctx, ReasonDebounced, session.Patch{})
}

// FlushNow cancels any pending debounced flush and writes patch at once.
// A nil ElapsedTime in patch is filled with the current elapsed time.
func (s *Scheduler) FlushNow(ctx context.Context, reason string, patch session.Patch) (*Result, error) {
	s.Cancel()
	return s.flush(ctx, reason, patch)
}

func (s *Scheduler) flush(ctx context.Context, reason string, patch session.Patch) (*Result, error) {
	if s.sessionID == "" {
		return nil, domainErrors.ErrNoActiveSession
	}
	ctx = logging.WithSessionID(ctx, s.sessionID)
	ctx, span := s.tracer.StartFlushSpan(ctx, s.sessionID, reason)

	now := s.clock.Now()
	if patch.ElapsedTime == nil {
		patch.ElapsedTime = session.IntPtr(s.engine.Elapsed(now))
	}
	elapsed := *patch.ElapsedTime
	span.SetElapsed(elapsed)

	body, err := json.Marshal(patch)
	if err != nil {
		span.EndWithError(err)
		return nil, fmt.Errorf("marshaling patch: %w", err)
	}

	res, err := s.client.Send(ctx, outbox.WriteRequest{
		Method: http.MethodPut,
		Path:   outbox.SessionPathPrefix + s.sessionID,
		Body:   body,
	})
	if err != nil {
		span.EndWithError(err)
		s.logger.WarnContext(ctx, "flush failed", "reason", reason, "error", err)
		return nil, err
	}

	s.engine.Reanchor(now, elapsed)
	if cp := s.engine.Checkpoint(); cp != nil {
		if err := s.store.Save(ctx, cp); err != nil {
			s.logger.WarnContext(ctx, "saving checkpoint after flush", "error", err)
		}
	}

	result := &Result{Elapsed: elapsed, Queued: res.Queued()}
	if !result.Queued && len(res.Body) > 0 {
		var sess session.Session
		if err := json.Unmarshal(res.Body, &sess); err == nil && sess.ID != "" {
			result.Session = &sess
		}
	}

	span.SetQueued(result.Queued)
	span.End()
	logging.LogFlush(ctx, s.logger, reason, elapsed, result.Queued)
	return result, nil
}
