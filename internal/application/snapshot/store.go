// Package snapshot persists the session checkpoint and the cached session
// record so a restarted process can rebuild its timer.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
)

// Storage keys.
const (
	CheckpointKey = "studySession"
	SessionKey    = "currentSession"
)

// Store wraps a key-value port with checkpoint validation.
type Store struct {
	kv     ports.KeyValueStoragePort
	clock  ports.Clock
	logger *logging.Logger
}

// NewStore creates a snapshot store. A nil logger uses the global logger.
func NewStore(kv ports.KeyValueStoragePort, clock ports.Clock, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{kv: kv, clock: clock, logger: logger}
}

// Save persists cp, replacing any previous checkpoint.
func (s *Store) Save(ctx context.Context, cp *session.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := s.kv.Set(ctx, CheckpointKey, string(data)); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Load returns the persisted checkpoint for activeSessionID.
//
// Malformed or out-of-range data, and a checkpoint written for a different
// session, are treated as absent: Load returns nil, nil. An empty
// activeSessionID accepts whichever session the checkpoint names.
// Load never writes to the store.
func (s *Store) Load(ctx context.Context, activeSessionID string) (*session.Checkpoint, error) {
	raw, ok, err := s.kv.Get(ctx, CheckpointKey)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if !ok {
		return nil, nil
	}

	cp, err := decodeCheckpoint(raw)
	if err != nil {
		s.logger.DebugContext(ctx, "discarding malformed checkpoint", "error", err)
		return nil, nil
	}
	if err := cp.Validate(s.clock.Now()); err != nil {
		s.logger.DebugContext(ctx, "discarding invalid checkpoint", "error", err)
		return nil, nil
	}
	if activeSessionID != "" && !cp.BelongsTo(activeSessionID) {
		s.logger.DebugContext(ctx, "discarding stale checkpoint",
			"checkpoint_session", cp.SessionID,
			"active_session", activeSessionID)
		return nil, nil
	}
	return cp, nil
}

// Clear removes the persisted checkpoint.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, CheckpointKey); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}

// SaveSession caches the last known remote session record.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.kv.Set(ctx, SessionKey, string(data)); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the cached session record, or nil if none is cached
// or the cached value is unusable.
func (s *Store) LoadSession(ctx context.Context) (*session.Session, error) {
	raw, ok, err := s.kv.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.DebugContext(ctx, "discarding malformed cached session", "error", err)
		return nil, nil
	}
	if err := sess.Validate(); err != nil {
		s.logger.DebugContext(ctx, "discarding invalid cached session", "error", err)
		return nil, nil
	}
	return &sess, nil
}

// ClearSession removes the cached session record.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// decodeCheckpoint parses raw strictly: all three fields must be present,
// numbers must be integers and unknown fields are rejected.
func decodeCheckpoint(raw string) (*session.Checkpoint, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("checkpoint is null")
	}
	for _, key := range []string{"sessionId", "startTime", "baseElapsedTime"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("missing field %q", key)
		}
	}

	var cp session.Checkpoint
	strict := json.NewDecoder(bytes.NewReader([]byte(raw)))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
