// Package outbox implements the offline write queue, the durable write
// client that feeds it, and the background worker that replays it.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
)

// Default expiry bounds for queued writes.
const (
	DefaultMaxAge      = 24 * time.Hour
	DefaultMaxAttempts = 50
)

// QueueConfig bounds how long a write may wait for replay.
type QueueConfig struct {
	MaxAge      time.Duration
	MaxAttempts int
}

// DefaultQueueConfig returns the default expiry bounds.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{MaxAge: DefaultMaxAge, MaxAttempts: DefaultMaxAttempts}
}

// SendFunc delivers one queued request.
type SendFunc func(ctx context.Context, req outbox.WriteRequest) error

// Queue is the strict-FIFO offline write queue.
type Queue struct {
	store  ports.WriteQueueStoragePort
	clock  ports.Clock
	cfg    QueueConfig
	logger *logging.Logger
}

// NewQueue creates a queue over store.
func NewQueue(store ports.WriteQueueStoragePort, clock ports.Clock, cfg QueueConfig, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{store: store, clock: clock, cfg: cfg, logger: logger}
}

// Enqueue durably appends req. Only session-state writes are accepted.
func (q *Queue) Enqueue(ctx context.Context, req outbox.WriteRequest, cause error) (*outbox.QueuedWrite, error) {
	if !req.Queueable() {
		return nil, fmt.Errorf("%w: %s %s", domainErrors.ErrNotQueueable, req.Method, req.Path)
	}
	w := outbox.NewQueuedWrite(req, q.clock.Now())
	if cause != nil {
		w.LastError = cause.Error()
	}
	if err := q.store.Append(ctx, w); err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeStorage, "enqueueing write", err)
	}
	logging.LogWriteQueued(logging.WithWriteID(ctx, w.ID), q.logger, req.Method, req.Path, cause)
	return w, nil
}

// Pending returns the number of queued writes.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	n, err := q.store.Count(ctx)
	if err != nil {
		return 0, domainErrors.NewError(domainErrors.CodeStorage, "counting queued writes", err)
	}
	return n, nil
}

// List returns up to limit queued writes in replay order.
func (q *Queue) List(ctx context.Context, limit int) ([]*outbox.QueuedWrite, error) {
	writes, err := q.store.List(ctx, limit)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeStorage, "listing queued writes", err)
	}
	return writes, nil
}

// Purge removes every expired write and returns how many were removed.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	removed := 0
	if q.cfg.MaxAge > 0 {
		n, err := q.store.DeleteOlderThan(ctx, q.clock.Now().Add(-q.cfg.MaxAge))
		if err != nil {
			return 0, domainErrors.NewError(domainErrors.CodeStorage, "purging queued writes", err)
		}
		removed += n
	}
	if q.cfg.MaxAttempts > 0 {
		writes, err := q.List(ctx, 0)
		if err != nil {
			return removed, err
		}
		now := q.clock.Now()
		for _, w := range writes {
			if !w.Expired(now, q.cfg.MaxAge, q.cfg.MaxAttempts) {
				continue
			}
			if err := q.store.Delete(ctx, w.ID); err != nil {
				return removed, domainErrors.NewError(domainErrors.CodeStorage, "purging queued writes", err)
			}
			removed++
		}
	}
	if removed > 0 {
		q.logger.WarnContext(ctx, "purged expired queued writes", "count", removed)
	}
	return removed, nil
}

// DrainInOrder replays queued writes in insertion order through send.
//
// A delivered write is removed. A rejected write is logged and removed so
// it cannot wedge the queue. Any other failure records the attempt and ends
// the run, leaving it and every younger write queued for the next drain.
func (q *Queue) DrainInOrder(ctx context.Context, send SendFunc) (*ports.DrainResult, error) {
	start := time.Now()
	result := &ports.DrainResult{}

	writes, err := q.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			result.Stopped = true
			break
		}
		wctx := logging.WithWriteID(ctx, w.ID)

		if w.Expired(q.clock.Now(), q.cfg.MaxAge, q.cfg.MaxAttempts) {
			if err := q.store.Delete(ctx, w.ID); err != nil {
				return nil, domainErrors.NewError(domainErrors.CodeStorage, "dropping expired write", err)
			}
			logging.LogWriteDropped(wctx, q.logger, w.Request.Method, w.Request.Path, "expired", domainErrors.ErrWriteExpired)
			result.Expired++
			continue
		}

		sendErr := send(wctx, w.Request)
		switch {
		case sendErr == nil:
			if err := q.store.Delete(ctx, w.ID); err != nil {
				return nil, domainErrors.NewError(domainErrors.CodeStorage, "removing replayed write", err)
			}
			result.Replayed++
		case domainErrors.IsRejected(sendErr):
			if err := q.store.Delete(ctx, w.ID); err != nil {
				return nil, domainErrors.NewError(domainErrors.CodeStorage, "dropping rejected write", err)
			}
			logging.LogWriteDropped(wctx, q.logger, w.Request.Method, w.Request.Path, "rejected", sendErr)
			result.Rejected++
		default:
			if err := q.store.RecordFailure(ctx, w.ID, sendErr.Error()); err != nil {
				return nil, domainErrors.NewError(domainErrors.CodeStorage, "recording replay failure", err)
			}
			q.logger.DebugContext(wctx, "replay stopped", "error", sendErr)
			result.Stopped = true
		}
		if result.Stopped {
			break
		}
	}

	remaining, err := q.Pending(ctx)
	if err != nil {
		return nil, err
	}
	result.Remaining = remaining
	logging.LogReplayResult(ctx, q.logger, result.Replayed, result.Rejected, result.Expired, result.Remaining, time.Since(start))
	return result, nil
}
