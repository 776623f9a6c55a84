package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/tracing"
)

// DurableClient implements ports.DurableWriteClient over a remote port and
// an offline Queue. Sends are serialized among themselves and drains among
// themselves, but a Send never waits for a drain. While a backlog exists a
// new write is queued behind it and the replay worker is nudged, so writes
// reach the remote in the order they were issued.
type DurableClient struct {
	sendMu  sync.Mutex
	drainMu sync.Mutex
	remote  ports.SessionRemotePort
	queue   *Queue
	tracer  *tracing.Tracer
	logger  *logging.Logger

	triggerMu sync.Mutex
	onBacklog func()
}

// Compile-time check that DurableClient satisfies the port.
var _ ports.DurableWriteClient = (*DurableClient)(nil)

// NewDurableClient creates a durable write client.
func NewDurableClient(remote ports.SessionRemotePort, queue *Queue, tracer *tracing.Tracer, logger *logging.Logger) *DurableClient {
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DurableClient{remote: remote, queue: queue, tracer: tracer, logger: logger}
}

// SetReplayTrigger registers fn to be called whenever a write is queued
// behind an existing backlog. fn must not block.
func (c *DurableClient) SetReplayTrigger(fn func()) {
	c.triggerMu.Lock()
	defer c.triggerMu.Unlock()
	c.onBacklog = fn
}

func (c *DurableClient) requestReplay() {
	c.triggerMu.Lock()
	fn := c.onBacklog
	c.triggerMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Send issues req. A queueable write that cannot reach the remote, or that
// would overtake queued writes, is queued and acknowledged with
// {status:"queued"} instead of an error. Send never replays the backlog
// itself; that is left to the replay worker.
func (c *DurableClient) Send(ctx context.Context, req outbox.WriteRequest) (*ports.WriteResult, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ctx, span := c.tracer.StartWriteSpan(ctx, req.Method, req.Path)

	if !req.Queueable() {
		body, err := c.remote.Execute(ctx, req)
		if err != nil {
			span.EndWithError(err)
			return nil, err
		}
		span.End()
		return &ports.WriteResult{Body: body}, nil
	}

	backlog, err := c.queue.Pending(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "queue unavailable, sending directly", "error", err)
		backlog = 0
	}
	span.SetBacklog(backlog)

	// A write in flight during a drain is only deleted after delivery, so a
	// zero count means nothing older can still reach the remote.
	if backlog > 0 {
		result, qerr := c.enqueue(ctx, req, domainErrors.ErrBacklogPending)
		if qerr != nil {
			span.EndWithError(qerr)
			return nil, qerr
		}
		span.SetQueued(true)
		span.End()
		c.requestReplay()
		return result, nil
	}

	body, err := c.remote.Execute(ctx, req)
	if err == nil {
		span.SetQueued(false)
		span.End()
		return &ports.WriteResult{Body: body}, nil
	}
	if !domainErrors.IsTransient(err) {
		span.EndWithError(err)
		return nil, err
	}

	result, qerr := c.enqueue(ctx, req, err)
	if qerr != nil {
		span.EndWithError(qerr)
		return nil, qerr
	}
	span.SetQueued(true)
	span.End()
	return result, nil
}

// EnqueueOnFailure durably queues req without attempting it.
func (c *DurableClient) EnqueueOnFailure(ctx context.Context, req outbox.WriteRequest, cause error) (*outbox.QueuedWrite, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.queue.Enqueue(ctx, req, cause)
}

// Drain replays the queue in order. Concurrent drains run one at a time.
func (c *DurableClient) Drain(ctx context.Context) (*ports.DrainResult, error) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	return c.queue.DrainInOrder(ctx, c.execute)
}

// Queued returns the writes awaiting replay.
func (c *DurableClient) Queued(ctx context.Context) ([]*outbox.QueuedWrite, error) {
	return c.queue.List(ctx, 0)
}

func (c *DurableClient) execute(ctx context.Context, req outbox.WriteRequest) error {
	_, err := c.remote.Execute(ctx, req)
	return err
}

func (c *DurableClient) enqueue(ctx context.Context, req outbox.WriteRequest, cause error) (*ports.WriteResult, error) {
	w, err := c.queue.Enqueue(ctx, req, cause)
	if err != nil {
		return nil, fmt.Errorf("queueing write after failure: %w", errors.Join(err, cause))
	}
	ack := outbox.QueuedAck()
	return &ports.WriteResult{Ack: &ack, QueuedID: w.ID}, nil
}
