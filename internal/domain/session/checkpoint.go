package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/domain/errors"
)

const (
	// MaxElapsedSeconds bounds a believable checkpoint. Anything larger is
	// treated as corrupt.
	MaxElapsedSeconds = 7 * 24 * 60 * 60

	// MaxClockSkew is how far in the future a checkpoint start may lie before
	// it is rejected.
	MaxClockSkew = 5 * time.Second
)

// Checkpoint is the locally persisted anchor used to compute elapsed time.
//
// While running: elapsed = BaseElapsedSeconds + floor((now - StartTimeEpochMs) / 1000).
// While paused: elapsed = BaseElapsedSeconds.
type Checkpoint struct {
	SessionID          string `json:"sessionId"`
	StartTimeEpochMs   int64  `json:"startTime"`
	BaseElapsedSeconds int    `json:"baseElapsedTime"`
	Paused             bool   `json:"paused,omitempty"`
}

// NewCheckpoint anchors a running checkpoint at now with the given base.
func NewCheckpoint(sessionID string, now time.Time, baseElapsed int) (*Checkpoint, error) {
	cp := &Checkpoint{
		SessionID:          sessionID,
		StartTimeEpochMs:   now.UnixMilli(),
		BaseElapsedSeconds: baseElapsed,
	}
	if err := cp.Validate(now); err != nil {
		return nil, err
	}
	return cp, nil
}

// Elapsed returns the elapsed seconds at now. A wall clock that moved
// backwards contributes zero rather than a negative delta.
func (c *Checkpoint) Elapsed(now time.Time) int {
	if c == nil {
		return 0
	}
	if c.Paused {
		return c.BaseElapsedSeconds
	}
	delta := now.UnixMilli() - c.StartTimeEpochMs
	if delta < 0 {
		delta = 0
	}
	return c.BaseElapsedSeconds + int(delta/1000)
}

// Reanchor moves the anchor to a confirmed elapsed value observed at `at`.
// The sub-second remainder of the running delta is kept in the new start
// time so repeated re-anchoring never loses fractions of a second.
func (c *Checkpoint) Reanchor(at time.Time, confirmed int) {
	atMs := at.UnixMilli()
	if c.Paused {
		c.StartTimeEpochMs = atMs
		c.BaseElapsedSeconds = confirmed
		return
	}
	delta := atMs - c.StartTimeEpochMs
	var remainder int64
	if delta > 0 {
		remainder = delta % 1000
	}
	c.StartTimeEpochMs = atMs - remainder
	c.BaseElapsedSeconds = confirmed
}

// Pause freezes the checkpoint at its current elapsed value.
func (c *Checkpoint) Pause(now time.Time) {
	if c.Paused {
		return
	}
	c.BaseElapsedSeconds = c.Elapsed(now)
	c.StartTimeEpochMs = now.UnixMilli()
	c.Paused = true
}

// Resume restarts the clock from the frozen value.
func (c *Checkpoint) Resume(now time.Time) {
	if !c.Paused {
		return
	}
	c.StartTimeEpochMs = now.UnixMilli()
	c.Paused = false
}

// BelongsTo reports whether the checkpoint was written for sessionID.
func (c *Checkpoint) BelongsTo(sessionID string) bool {
	return c != nil && sessionID != "" && c.SessionID == sessionID
}

// Validate checks shape and numeric ranges relative to now.
func (c *Checkpoint) Validate(now time.Time) error {
	if strings.TrimSpace(c.SessionID) == "" {
		return errors.NewError(errors.CodeValidation, "invalid checkpoint", errors.ErrSessionIDRequired)
	}
	if c.StartTimeEpochMs <= 0 {
		return errors.NewError(errors.CodeValidation, "invalid checkpoint", fmt.Errorf("%w: start time %d", errors.ErrInvalidCheckpoint, c.StartTimeEpochMs))
	}
	if c.StartTimeEpochMs > now.Add(MaxClockSkew).UnixMilli() {
		return errors.NewError(errors.CodeValidation, "invalid checkpoint", fmt.Errorf("%w: start time in the future", errors.ErrInvalidCheckpoint))
	}
	if c.BaseElapsedSeconds < 0 || c.BaseElapsedSeconds > MaxElapsedSeconds {
		return errors.NewError(errors.CodeValidation, "invalid checkpoint", fmt.Errorf("%w: base elapsed %d out of range", errors.ErrInvalidCheckpoint, c.BaseElapsedSeconds))
	}
	return nil
}

// Clone returns a copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
