// Package ports defines the application layer port interfaces following hexagonal architecture.
package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
)

// -----------------------------------------------------------------------------
// Key-Value Storage Port
// -----------------------------------------------------------------------------

// KeyValueStoragePort is a durable string key-value store.
//
// Values are stored as opaque text. Callers own encoding and must validate
// what they read back, since any process with access to the store can
// write to it.
type KeyValueStoragePort interface {
	// Get returns the raw value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// Write Queue Storage Port
// -----------------------------------------------------------------------------

// WriteQueueStoragePort is the durable FIFO behind the offline write queue.
type WriteQueueStoragePort interface {
	// Append persists w and assigns its Seq.
	Append(ctx context.Context, w *outbox.QueuedWrite) error

	// List returns queued writes ordered by enqueue time, then Seq.
	// A limit of 0 returns all entries.
	List(ctx context.Context, limit int) ([]*outbox.QueuedWrite, error)

	// Delete removes the write with the given ID. Deleting a missing
	// entry is not an error.
	Delete(ctx context.Context, id string) error

	// RecordFailure increments the attempt counter and stores lastErr.
	RecordFailure(ctx context.Context, id string, lastErr string) error

	// Count returns the number of queued writes.
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes writes enqueued before cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
