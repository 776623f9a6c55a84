// Package session runs a study session: it owns the clock engine, the
// flush scheduler, and the alarm state, and serializes every change to them
// on a single event loop.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/clock"
	"github.com/jbctechsolutions/focusvault/internal/application/flush"
	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	"github.com/jbctechsolutions/focusvault/internal/application/snapshot"
	"github.com/jbctechsolutions/focusvault/internal/domain/alarm"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/tracing"
)

// Options configures a Controller.
type Options struct {
	Remote      ports.SessionRemotePort
	Client      ports.DurableWriteClient
	Store       *snapshot.Store
	Clock       ports.Clock
	Foreground  clock.TickScheduler
	Background  clock.TickScheduler
	Visibility  clock.VisibilityObserver
	FlushWindow time.Duration
	Notifier    ports.AlarmNotifier
	Tracer      *tracing.Tracer
	Logger      *logging.Logger

	// OnTick, if set, is called on the event loop after every tick.
	OnTick func(Status)
}

// Status is a read-only view of the controller.
type Status struct {
	SessionID    string         `json:"sessionId,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	State        session.Status `json:"status,omitempty"`
	Elapsed      int            `json:"elapsedTime"`
	Target       int            `json:"targetTime,omitempty"`
	Mode         clock.Mode     `json:"mode"`
	Muted        bool           `json:"muted"`
	AlarmFired   bool           `json:"alarmFired"`
	FlushPending bool           `json:"flushPending"`
	LastQueued   bool           `json:"lastWriteQueued"`
}

// HasSession reports whether a session is loaded.
func (s Status) HasSession() bool {
	return s.SessionID != ""
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// published pairs a status with a private checkpoint copy so readers off
// the loop can recompute elapsed without touching loop state.
type published struct {
	status Status
	cp     *session.Checkpoint
}

// Controller owns one study session at a time.
type Controller struct {
	remote     ports.SessionRemotePort
	client     ports.DurableWriteClient
	store      *snapshot.Store
	clock      ports.Clock
	engine     *clock.Engine
	flusher    *flush.Scheduler
	alarm      *alarm.State
	notifier   ports.AlarmNotifier
	visibility clock.VisibilityObserver
	logger     *logging.Logger
	onTick     func(Status)

	// Loop-owned state.
	current    *session.Session
	lastQueued bool

	cmds chan command
	view atomic.Pointer[published]

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewController wires a controller. Call Start before using it.
func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Foreground == nil {
		opts.Foreground = clock.NewFrameScheduler(clock.DefaultFrameInterval)
	}
	if opts.Background == nil {
		opts.Background = clock.NewIntervalScheduler(clock.DefaultBackgroundTick)
	}
	if opts.Visibility == nil {
		opts.Visibility = clock.NewManualVisibility(true)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	engine := clock.NewEngine(opts.Foreground, opts.Background)
	c := &Controller{
		remote:     opts.Remote,
		client:     opts.Client,
		store:      opts.Store,
		clock:      opts.Clock,
		engine:     engine,
		flusher:    flush.NewScheduler(opts.Client, engine, opts.Store, opts.Clock, opts.FlushWindow, opts.Tracer, opts.Logger),
		alarm:      alarm.NewState(),
		notifier:   opts.Notifier,
		visibility: opts.Visibility,
		logger:     opts.Logger,
		onTick:     opts.OnTick,
		cmds:       make(chan command),
	}
	c.publish()
	return c
}

// Start launches the event loop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, c.stop, c.done)
}

// Stop flushes a running session immediately, halts ticking and ends the
// event loop. The checkpoint stays on disk so the session can be restored.
func (c *Controller) Stop(ctx context.Context) error {
	err := c.do(ctx, func(ctx context.Context) error {
		c.flushOnUnload(ctx)
		c.engine.Stop()
		return nil
	})

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	c.publish()
	return err
}

// Current returns the last published status with elapsed recomputed for
// now. It is safe to call from any goroutine and never writes.
func (c *Controller) Current() Status {
	p := c.view.Load()
	st := p.status
	if p.cp != nil {
		if v := p.cp.Elapsed(c.clock.Now()); v > st.Elapsed {
			st.Elapsed = v
		}
	}
	return st
}

// Status returns the controller status as seen by the event loop.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, func(context.Context) error {
		st = c.snapshot()
		return nil
	})
	if err != nil {
		return c.Current(), err
	}
	return st, nil
}

// Restore rebuilds the session from the remote record, or from the cached
// record when the remote is unreachable, and the persisted checkpoint.
func (c *Controller) Restore(ctx context.Context) (Status, error) {
	return c.run(ctx, c.restore)
}

// StartSession creates a session remotely and starts its timer.
func (c *Controller) StartSession(ctx context.Context, subject string, target int) (Status, error) {
	return c.run(ctx, func(ctx context.Context) error {
		return c.startSession(ctx, session.StartRequest{Subject: subject, TargetTime: target})
	})
}

// Pause freezes the timer and flushes immediately.
func (c *Controller) Pause(ctx context.Context) (Status, error) {
	return c.run(ctx, c.pause)
}

// Resume restarts the timer from its frozen value.
func (c *Controller) Resume(ctx context.Context) (Status, error) {
	return c.run(ctx, c.resume)
}

// End flushes the final elapsed time, ends the session remotely and
// destroys the local checkpoint.
func (c *Controller) End(ctx context.Context, notes string) (Status, error) {
	return c.run(ctx, func(ctx context.Context) error { return c.end(ctx, notes) })
}

// SaveNotes writes notes with the current elapsed time.
func (c *Controller) SaveNotes(ctx context.Context, notes string) (Status, error) {
	return c.run(ctx, func(ctx context.Context) error { return c.saveNotes(ctx, notes) })
}

// Abandon deletes the session remotely and clears local state.
func (c *Controller) Abandon(ctx context.Context) (Status, error) {
	return c.run(ctx, c.abandon)
}

// Reset clears local state without contacting the remote.
func (c *Controller) Reset(ctx context.Context) (Status, error) {
	return c.run(ctx, func(ctx context.Context) error {
		return c.clearLocal(ctx)
	})
}

// Mute suppresses the alarm notification.
func (c *Controller) Mute(ctx context.Context) (Status, error) {
	return c.run(ctx, func(context.Context) error {
		c.alarm.Mute()
		return nil
	})
}

// Unmute re-enables the alarm notification.
func (c *Controller) Unmute(ctx context.Context) (Status, error) {
	return c.run(ctx, func(context.Context) error {
		c.alarm.Unmute()
		return nil
	})
}

// FlushNow writes the current elapsed time immediately.
func (c *Controller) FlushNow(ctx context.Context) (Status, error) {
	return c.run(ctx, func(ctx context.Context) error {
		if c.current == nil {
			return domainErrors.ErrNoActiveSession
		}
		return c.immediate(ctx, flush.ReasonUnload, session.Patch{})
	})
}

// run executes fn on the loop and returns the resulting status.
func (c *Controller) run(ctx context.Context, fn func(ctx context.Context) error) (Status, error) {
	var st Status
	ran := false
	err := c.do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		st, ran = c.snapshot(), true
		return err
	})
	if !ran {
		st = c.Current()
	}
	return st, err
}

func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	running, done := c.running, c.done
	c.mu.Unlock()
	if !running {
		return domainErrors.ErrControllerStopped
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-done:
		return domainErrors.ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	changes := c.visibility.Changes()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			c.engine.Stop()
			return
		case cmd := <-c.cmds:
			err := cmd.fn(ctx)
			c.publish()
			cmd.reply <- err
		case visible := <-changes:
			c.engine.SetVisible(visible)
			c.logger.DebugContext(ctx, "visibility changed", "visible", visible, "scheduler", c.engine.SchedulerName())
			c.publish()
		case <-c.engine.Ticks():
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	if c.current == nil {
		return
	}
	ctx = logging.WithSessionID(ctx, c.current.ID)
	now := c.clock.Now()
	elapsed := c.engine.Elapsed(now)

	if ev := c.alarm.Check(elapsed, c.current.TargetTime); ev.Fired {
		logging.LogAlarmFired(ctx, c.logger, elapsed, c.current.TargetTime, ev.Audible)
		if ev.Audible && c.notifier != nil {
			if err := c.notifier.Notify(ctx, c.current.ID, c.current.Subject, elapsed); err != nil {
				c.logger.WarnContext(ctx, "alarm notification failed", "error", err)
			}
		}
	}

	c.flusher.ScheduleDebounced(now)
	if c.flusher.Due(now) {
		res, err := c.flusher.FlushDebounced(ctx)
		c.recordFlush(res, err)
	}

	c.publish()
	if c.onTick != nil {
		c.onTick(c.snapshot())
	}
}

func (c *Controller) restore(ctx context.Context) error {
	sess, err := c.pickActive(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return c.clearLocal(ctx)
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	now := c.clock.Now()

	cp, err := c.store.Load(ctx, sess.ID)
	if err != nil {
		c.logger.WarnContext(ctx, "checkpoint unavailable, rebuilding", "error", err)
		cp = nil
	}
	if cp == nil {
		base := sess.ElapsedTime
		if base > session.MaxElapsedSeconds {
			base = 0
		}
		cp = &session.Checkpoint{SessionID: sess.ID, StartTimeEpochMs: now.UnixMilli(), BaseElapsedSeconds: base}
		if sess.IsPaused() {
			cp.Paused = true
		}
	}

	// The local checkpoint is the most recent local knowledge; the cached
	// status follows it.
	if cp.Paused {
		sess.Status = session.StatusPaused
	} else {
		sess.Status = session.StatusActive
	}

	c.current = sess
	c.alarm.Reset()
	c.engine.SetCheckpoint(cp)
	c.flusher.SetSession(sess.ID)
	elapsed := c.engine.Elapsed(now)
	c.alarm.Prime(elapsed, sess.TargetTime)
	c.engine.Run(c.visibility.Visible())

	c.persist(ctx)
	c.logger.InfoContext(ctx, "session restored", "elapsed_seconds", elapsed, "status", sess.Status)
	return nil
}

// pickActive returns the session to restore. An active session wins over a
// paused one. When the remote is unreachable the cached record is used.
// Sessions with a queued end or delete are skipped, since the remote has
// not seen that write yet.
func (c *Controller) pickActive(ctx context.Context) (*session.Session, error) {
	closing := c.closingSessions(ctx)

	sessions, err := c.remote.ActiveSessions(ctx)
	if err != nil {
		if !domainErrors.IsTransient(err) {
			return nil, fmt.Errorf("listing active sessions: %w", err)
		}
		c.logger.InfoContext(ctx, "remote unreachable, restoring from cache")
		cached, cerr := c.store.LoadSession(ctx)
		if cerr != nil {
			return nil, cerr
		}
		if cached != nil && (cached.IsEnded() || closing[cached.ID]) {
			return nil, nil
		}
		return cached, nil
	}

	var pick *session.Session
	for _, s := range sessions {
		if s.IsEnded() || closing[s.ID] {
			continue
		}
		if pick == nil || (s.IsActive() && !pick.IsActive()) {
			pick = s
		}
	}
	return pick, nil
}

// closingSessions returns the ids of sessions with a queued end or delete.
func (c *Controller) closingSessions(ctx context.Context) map[string]bool {
	if c.client == nil {
		return nil
	}
	writes, err := c.client.Queued(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "queued writes unavailable", "error", err)
		return nil
	}
	closing := make(map[string]bool)
	for _, w := range writes {
		if id, ok := w.Request.ClosedSessionID(); ok {
			closing[id] = true
		}
	}
	return closing
}

func (c *Controller) startSession(ctx context.Context, req session.StartRequest) error {
	if c.current != nil && !c.current.IsEnded() {
		return fmt.Errorf("%w: %s", domainErrors.ErrSessionInProgress, c.current.ID)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	sess, err := c.remote.StartSession(ctx, req)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	now := c.clock.Now()

	cp, err := session.NewCheckpoint(sess.ID, now, sess.ElapsedTime)
	if err != nil {
		return err
	}
	c.current = sess
	c.lastQueued = false
	c.alarm.Reset()
	c.engine.SetCheckpoint(cp)
	c.flusher.SetSession(sess.ID)
	c.engine.Run(c.visibility.Visible())

	c.persist(ctx)
	c.logger.InfoContext(ctx, "session started", "subject", sess.Subject, "target_seconds", sess.TargetTime)
	return nil
}

func (c *Controller) pause(ctx context.Context) error {
	if err := c.requireTransition(session.StatusPaused); err != nil {
		return err
	}
	now := c.clock.Now()
	elapsed := c.engine.Pause(now)
	c.current.Status = session.StatusPaused
	c.persist(ctx)

	return c.immediate(ctx, flush.ReasonPause, session.Patch{
		Status:      session.StatusPtr(session.StatusPaused),
		ElapsedTime: session.IntPtr(elapsed),
	})
}

func (c *Controller) resume(ctx context.Context) error {
	if err := c.requireTransition(session.StatusActive); err != nil {
		return err
	}
	now := c.clock.Now()
	c.engine.Resume(now, c.visibility.Visible())
	c.current.Status = session.StatusActive
	c.persist(ctx)

	return c.immediate(ctx, flush.ReasonResume, session.Patch{
		Status:      session.StatusPtr(session.StatusActive),
		ElapsedTime: session.IntPtr(c.engine.Elapsed(now)),
	})
}

func (c *Controller) end(ctx context.Context, notes string) error {
	if err := c.requireTransition(session.StatusEnded); err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, c.current.ID)
	elapsed := c.engine.Pause(c.clock.Now())

	if err := c.immediate(ctx, flush.ReasonEnd, session.Patch{ElapsedTime: session.IntPtr(elapsed)}); err != nil {
		c.logger.WarnContext(ctx, "final flush failed", "error", err)
	}

	body, err := json.Marshal(session.EndRequest{Notes: notes})
	if err != nil {
		return fmt.Errorf("marshaling end request: %w", err)
	}
	res, sendErr := c.client.Send(ctx, outbox.WriteRequest{
		Method: http.MethodPost,
		Path:   outbox.SessionPathPrefix + c.current.ID + "/end",
		Body:   body,
	})
	if sendErr == nil {
		c.lastQueued = res.Queued()
	}

	if err := c.clearLocal(ctx); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("ending session: %w", sendErr)
	}
	c.logger.InfoContext(ctx, "session ended", "elapsed_seconds", elapsed, "queued", c.lastQueued)
	return nil
}

func (c *Controller) saveNotes(ctx context.Context, notes string) error {
	if c.current == nil {
		return domainErrors.ErrNoActiveSession
	}
	if c.current.IsEnded() {
		return domainErrors.ErrSessionEnded
	}
	c.current.Notes = notes
	return c.immediate(ctx, flush.ReasonNotes, session.Patch{Notes: session.StringPtr(notes)})
}

func (c *Controller) abandon(ctx context.Context) error {
	if c.current == nil {
		return domainErrors.ErrNoActiveSession
	}
	ctx = logging.WithSessionID(ctx, c.current.ID)
	id := c.current.ID

	c.flusher.Cancel()
	res, sendErr := c.client.Send(ctx, outbox.WriteRequest{
		Method: http.MethodDelete,
		Path:   outbox.SessionPathPrefix + id,
	})
	if sendErr == nil {
		c.lastQueued = res.Queued()
	}
	if err := c.clearLocal(ctx); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("abandoning session: %w", sendErr)
	}
	c.logger.InfoContext(ctx, "session abandoned")
	return nil
}

// clearLocal cancels timers and destroys the checkpoint and cached record.
// In-flight writes are not cancelled.
func (c *Controller) clearLocal(ctx context.Context) error {
	c.flusher.SetSession("")
	c.engine.SetCheckpoint(nil)
	c.alarm.Reset()
	c.current = nil

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	return c.store.ClearSession(ctx)
}

func (c *Controller) immediate(ctx context.Context, reason string, patch session.Patch) error {
	res, err := c.flusher.FlushNow(ctx, reason, patch)
	c.recordFlush(res, err)
	if err != nil {
		return err
	}
	if res.Session != nil && c.current != nil && res.Session.ID == c.current.ID {
		c.current.ElapsedTime = res.Session.ElapsedTime
	}
	c.persist(ctx)
	return nil
}

func (c *Controller) recordFlush(res *flush.Result, err error) {
	if err != nil || res == nil {
		return
	}
	c.lastQueued = res.Queued
	if c.current != nil {
		c.current.ElapsedTime = res.Elapsed
	}
}

// flushOnUnload writes the current elapsed time before the loop exits.
func (c *Controller) flushOnUnload(ctx context.Context) {
	if c.current == nil || !c.current.IsActive() {
		return
	}
	if err := c.immediate(ctx, flush.ReasonUnload, session.Patch{}); err != nil {
		c.logger.WarnContext(ctx, "unload flush failed", "error", err)
	}
}

func (c *Controller) requireTransition(to session.Status) error {
	if c.current == nil {
		return domainErrors.ErrNoActiveSession
	}
	return c.current.CanTransition(to)
}

// persist saves the checkpoint and cached record. Failures are logged; the
// in-memory state stays authoritative for this process.
func (c *Controller) persist(ctx context.Context) {
	if cp := c.engine.Checkpoint(); cp != nil {
		if err := c.store.Save(ctx, cp); err != nil {
			c.logger.WarnContext(ctx, "saving checkpoint", "error", err)
		}
	}
	if c.current != nil {
		if err := c.store.SaveSession(ctx, c.current); err != nil {
			c.logger.WarnContext(ctx, "saving session", "error", err)
		}
	}
}

func (c *Controller) snapshot() Status {
	st := Status{
		Mode:         c.engine.Mode(),
		Muted:        c.alarm.Muted(),
		AlarmFired:   c.alarm.Fired(),
		FlushPending: c.flusher.Pending(),
		LastQueued:   c.lastQueued,
	}
	if c.current != nil {
		st.SessionID = c.current.ID
		st.Subject = c.current.Subject
		st.State = c.current.Status
		st.Target = c.current.TargetTime
		st.Elapsed = c.engine.Elapsed(c.clock.Now())
	}
	return st
}

func (c *Controller) publish() {
	c.view.Store(&published{status: c.snapshot(), cp: c.engine.Checkpoint().Clone()})
}
