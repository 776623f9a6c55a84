// Package testutil provides test fixtures and helpers for testing.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// FakeClock is a manually advanced clock safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t, which may be in the past.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// -----------------------------------------------------------------------------
// Key-value store
// -----------------------------------------------------------------------------

// MemoryKV is an in-memory KeyValueStoragePort.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV returns an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get returns the value for key.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Delete removes key.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// -----------------------------------------------------------------------------
// Write queue
// -----------------------------------------------------------------------------

// MemoryQueue is an in-memory WriteQueueStoragePort.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []*outbox.QueuedWrite
	seq     int64
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Append stores a copy of w and assigns its Seq.
func (q *MemoryQueue) Append(_ context.Context, w *outbox.QueuedWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	w.Seq = q.seq
	cp := *w
	q.entries = append(q.entries, &cp)
	return nil
}

// List returns copies ordered by Seq.
func (q *MemoryQueue) List(_ context.Context, limit int) ([]*outbox.QueuedWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*outbox.QueuedWrite, 0, len(q.entries))
	for _, e := range q.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes the entry with id.
func (q *MemoryQueue) Delete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// RecordFailure bumps the attempt count of id.
func (q *MemoryQueue) RecordFailure(_ context.Context, id string, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.ID == id {
			e.Attempts++
			e.LastError = lastErr
		}
	}
	return nil
}

// Count returns the number of entries.
func (q *MemoryQueue) Count(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// DeleteOlderThan removes entries enqueued before cutoff.
func (q *MemoryQueue) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.EnqueuedAtMs < cutoff.UnixMilli() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed, nil
}

// -----------------------------------------------------------------------------
// Remote session service
// -----------------------------------------------------------------------------

// FakeRemote is an in-memory SessionRemotePort with overwrite semantics.
// Toggle SetOffline to simulate transport failures.
type FakeRemote struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	offline  bool
	noWrites bool
	nextID   int
	attempts []outbox.WriteRequest
	applied  []outbox.WriteRequest
	gate     chan struct{}
}

// NewFakeRemote returns an online remote with no sessions.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{sessions: make(map[string]*session.Session)}
}

// SetOffline makes every call fail as unreachable while true.
func (r *FakeRemote) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// SetWritesFailing makes Execute fail as unreachable while reads and
// session creation keep working.
func (r *FakeRemote) SetWritesFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noWrites = failing
}

// Hold makes Execute block after recording its attempt until release is
// called or the call's context ends.
func (r *FakeRemote) Hold() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate = gate
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

// Put installs a session record directly.
func (r *FakeRemote) Put(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
}

// Session returns a copy of the record for id, or nil.
func (r *FakeRemote) Session(id string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Attempts returns every Execute call, including failed ones.
func (r *FakeRemote) Attempts() []outbox.WriteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.WriteRequest(nil), r.attempts...)
}

// Applied returns the Execute calls that reached the remote state.
func (r *FakeRemote) Applied() []outbox.WriteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.WriteRequest(nil), r.applied...)
}

// StartSession creates an active session.
func (r *FakeRemote) StartSession(_ context.Context, req session.StartRequest) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return nil, domainErrors.Transient("starting session", nil)
	}
	r.nextID++
	s := &session.Session{
		ID:         fmt.Sprintf("S%d", r.nextID),
		Subject:    req.Subject,
		Status:     session.StatusActive,
		TargetTime: req.TargetTime,
	}
	r.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

// ActiveSessions returns sessions that have not ended, ordered by ID.
func (r *FakeRemote) ActiveSessions(_ context.Context) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return nil, domainErrors.Transient("listing sessions", nil)
	}
	var out []*session.Session
	for _, s := range r.sessions {
		if !s.IsEnded() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping fails while offline.
func (r *FakeRemote) Ping(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return domainErrors.Transient("ping", nil)
	}
	return nil
}

// Execute applies req to the in-memory records.
func (r *FakeRemote) Execute(ctx context.Context, req outbox.WriteRequest) ([]byte, error) {
	r.mu.Lock()
	r.attempts = append(r.attempts, req)
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, domainErrors.Transient(req.Method+" "+req.Path, ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline || r.noWrites {
		return nil, domainErrors.Transient(req.Method+" "+req.Path, nil)
	}

	rest := strings.TrimPrefix(req.Path, outbox.SessionPathPrefix)
	id, action, _ := strings.Cut(rest, "/")
	s, ok := r.sessions[id]
	if !ok {
		return nil, domainErrors.Rejected("unknown session "+id, http.StatusNotFound)
	}

	switch {
	case req.Method == http.MethodPut && action == "":
		if s.IsEnded() {
			return nil, domainErrors.Rejected("session ended", http.StatusConflict)
		}
		var p session.Patch
		if err := json.Unmarshal(req.Body, &p); err != nil {
			return nil, domainErrors.Rejected("bad body", http.StatusBadRequest)
		}
		p.Apply(s)
	case req.Method == http.MethodPost && action == "end":
		var body session.EndRequest
		if len(req.Body) > 0 {
			if err := json.Unmarshal(req.Body, &body); err != nil {
				return nil, domainErrors.Rejected("bad body", http.StatusBadRequest)
			}
		}
		s.Status = session.StatusEnded
		s.Notes = body.Notes
	case req.Method == http.MethodDelete && action == "":
		delete(r.sessions, id)
		r.applied = append(r.applied, req)
		return []byte(`{}`), nil
	default:
		return nil, domainErrors.Rejected("unsupported "+req.Method+" "+req.Path, http.StatusMethodNotAllowed)
	}

	r.applied = append(r.applied, req)
	return json.Marshal(s)
}

// -----------------------------------------------------------------------------
// Alarm notifier
// -----------------------------------------------------------------------------

// RecordingNotifier records alarm notifications.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

// Notify records elapsed.
func (n *RecordingNotifier) Notify(_ context.Context, _ string, _ string, elapsed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, elapsed)
	return nil
}

// Calls returns the elapsed values of every notification.
func (n *RecordingNotifier) Calls() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.calls...)
}
