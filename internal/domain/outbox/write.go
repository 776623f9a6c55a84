// Package outbox defines the durable queued-write model used for offline replay.
package outbox

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/focusvault/internal/domain/errors"
)

// SessionPathPrefix is the path prefix of session-state endpoints.
const SessionPathPrefix = "/session/"

// StartPath is the session creation endpoint. It is never queued.
const StartPath = "/session/start"

// QueuedStatus is the status value of a synthesized queued acknowledgment.
const QueuedStatus = "queued"

// WriteRequest is a mutating request to the remote session service.
// Path is relative to the configured base URL.
type WriteRequest struct {
	Method string          `json:"method"`
	Path   string          `json:"targetUrl"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Validate checks that the request is a mutating request with a path.
func (r WriteRequest) Validate() error {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return errors.NewError(errors.CodeValidation, "write request must be mutating", nil)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return errors.NewError(errors.CodeValidation, "write request path must be absolute", nil)
	}
	return nil
}

// Queueable reports whether a failed attempt of r may be durably queued.
// Only writes to an existing session's state are queueable; creation is
// not idempotent and the caller needs the server-assigned id.
func (r WriteRequest) Queueable() bool {
	if r.Validate() != nil {
		return false
	}
	return IsSessionStatePath(r.Path)
}

// IsSessionStatePath reports whether path addresses an existing session,
// i.e. /session/{id} or /session/{id}/...
func IsSessionStatePath(path string) bool {
	if !strings.HasPrefix(path, SessionPathPrefix) {
		return false
	}
	rest := strings.TrimPrefix(path, SessionPathPrefix)
	id, _, _ := strings.Cut(rest, "/")
	return id != "" && path != StartPath && !strings.HasPrefix(path, StartPath+"/")
}

// ClosedSessionID returns the session r ends or deletes, if any.
func (r WriteRequest) ClosedSessionID() (string, bool) {
	if !IsSessionStatePath(r.Path) {
		return "", false
	}
	id, action, _ := strings.Cut(strings.TrimPrefix(r.Path, SessionPathPrefix), "/")
	switch {
	case r.Method == http.MethodPost && action == "end":
	case r.Method == http.MethodDelete && action == "":
	default:
		return "", false
	}
	return id, true
}

// QueuedWrite is a write that failed at the transport layer and awaits replay.
// Entries replay in Seq order; EnqueuedAtMs only bounds their age.
type QueuedWrite struct {
	ID           string       `json:"id"`
	Seq          int64        `json:"seq"`
	Request      WriteRequest `json:"request"`
	EnqueuedAtMs int64        `json:"enqueuedAtEpochMs"`
	Attempts     int          `json:"attempts"`
	LastError    string       `json:"lastError,omitempty"`
}

// NewQueuedWrite stamps req for the queue. Seq is assigned by storage.
func NewQueuedWrite(req WriteRequest, now time.Time) *QueuedWrite {
	return &QueuedWrite{
		ID:           uuid.New().String(),
		Request:      req,
		EnqueuedAtMs: now.UnixMilli(),
	}
}

// Age returns how long the write has been queued at now.
func (w *QueuedWrite) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(w.EnqueuedAtMs))
}

// Expired reports whether the write should be dropped instead of replayed.
// A zero maxAge or maxAttempts disables that bound.
func (w *QueuedWrite) Expired(now time.Time, maxAge time.Duration, maxAttempts int) bool {
	if maxAge > 0 && w.Age(now) > maxAge {
		return true
	}
	return maxAttempts > 0 && w.Attempts >= maxAttempts
}

// Ack is the response body returned to a caller whose write was queued.
type Ack struct {
	Status string `json:"status"`
}

// QueuedAck returns the synthesized queued acknowledgment.
func QueuedAck() Ack {
	return Ack{Status: QueuedStatus}
}

// IsQueued reports whether a is a queued acknowledgment.
func (a Ack) IsQueued() bool {
	return a.Status == QueuedStatus
}
