package ports

import (
	"context"

	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

// SessionRemotePort is the remote session-record service.
//
// Transport failures and 5xx responses are returned as transient domain
// errors; 4xx responses as rejections.
type SessionRemotePort interface {
	// StartSession creates a session. It is never queued.
	StartSession(ctx context.Context, req session.StartRequest) (*session.Session, error)

	// ActiveSessions returns the sessions that are active or paused.
	ActiveSessions(ctx context.Context) ([]*session.Session, error)

	// Execute sends a mutating request and returns the response body.
	Execute(ctx context.Context, req outbox.WriteRequest) ([]byte, error)

	// Ping reports whether the remote is reachable.
	Ping(ctx context.Context) error
}

// DurableWriteClient sends session-state writes, durably queueing the ones
// that fail at the transport layer.
type DurableWriteClient interface {
	// Send issues req. When the remote is unreachable and req is queueable,
	// the write is queued and a queued acknowledgment is returned with a nil
	// error.
	Send(ctx context.Context, req outbox.WriteRequest) (*WriteResult, error)

	// EnqueueOnFailure durably queues req without attempting it.
	EnqueueOnFailure(ctx context.Context, req outbox.WriteRequest, cause error) (*outbox.QueuedWrite, error)

	// Drain replays queued writes in order until the queue is empty or a
	// transient failure stops the run.
	Drain(ctx context.Context) (*DrainResult, error)

	// Queued returns the writes awaiting replay in replay order.
	Queued(ctx context.Context) ([]*outbox.QueuedWrite, error)
}

// WriteResult is the outcome of DurableWriteClient.Send.
type WriteResult struct {
	// Body is the remote response body. Empty when queued.
	Body []byte

	// Ack is set when the write was queued instead of delivered.
	Ack *outbox.Ack

	// QueuedID is the ID of the queued write, if any.
	QueuedID string
}

// Queued reports whether the write was queued.
func (r *WriteResult) Queued() bool {
	return r != nil && r.Ack != nil && r.Ack.IsQueued()
}

// DrainResult summarizes one drain run.
type DrainResult struct {
	Replayed  int `json:"replayed"`
	Rejected  int `json:"rejected"`
	Expired   int `json:"expired"`
	Remaining int `json:"remaining"`
	// Stopped is true when a transient failure ended the run early.
	Stopped bool `json:"stopped"`
}
