package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/tracing"
)

// Drain triggers.
const (
	TriggerManual       = "manual"
	TriggerWake         = "wake"
	TriggerConnectivity = "connectivity"
	TriggerFile         = "file"
	TriggerBacklog      = "backlog"
)

// DefaultWakeInterval is how often the worker drains without a signal.
const DefaultWakeInterval = time.Minute

// ReplayWorker drains the offline queue in the background whenever it is
// triggered or its periodic wake fires. Triggers that arrive while a drain
// is running coalesce into a single follow-up drain.
type ReplayWorker struct {
	client ports.DurableWriteClient
	wake   time.Duration
	tracer *tracing.Tracer
	logger *logging.Logger

	trigger chan string
	stop    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	running bool
	last    *ports.DrainResult
	lastErr error
}

// NewReplayWorker creates a stopped worker. A non-positive wake disables
// the periodic drain.
func NewReplayWorker(client ports.DurableWriteClient, wake time.Duration, tracer *tracing.Tracer, logger *logging.Logger) *ReplayWorker {
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplayWorker{
		client:  client,
		wake:    wake,
		tracer:  tracer,
		logger:  logger,
		trigger: make(chan string, 1),
	}
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (w *ReplayWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(ctx, w.stop, w.done)
}

// Stop halts the worker and waits for an in-flight drain to finish.
func (w *ReplayWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	close(stop)
	<-done
}

// Trigger requests a drain without blocking.
func (w *ReplayWorker) Trigger(reason string) {
	select {
	case w.trigger <- reason:
	default:
	}
}

// RunOnce drains synchronously on the caller's goroutine.
func (w *ReplayWorker) RunOnce(ctx context.Context, reason string) (*ports.DrainResult, error) {
	ctx, span := w.tracer.StartDrainSpan(ctx, reason)
	res, err := w.client.Drain(ctx)

	w.mu.Lock()
	w.last, w.lastErr = res, err
	w.mu.Unlock()

	if err != nil {
		span.EndWithError(err)
		w.logger.WarnContext(ctx, "drain failed", "trigger", reason, "error", err)
		return nil, err
	}
	span.SetCounts(res.Replayed, res.Rejected, res.Expired, res.Remaining)
	span.End()
	return res, nil
}

// LastResult returns the outcome of the most recent drain.
func (w *ReplayWorker) LastResult() (*ports.DrainResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.lastErr
}

func (w *ReplayWorker) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var wakeC <-chan time.Time
	if w.wake > 0 {
		ticker := time.NewTicker(w.wake)
		defer ticker.Stop()
		wakeC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-wakeC:
			_, _ = w.RunOnce(ctx, TriggerWake)
		case reason := <-w.trigger:
			_, _ = w.RunOnce(ctx, reason)
		}
	}
}
