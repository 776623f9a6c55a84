// Package session defines domain models for study sessions and their local checkpoints.
package session

import (
	"fmt"
	"strings"

	"github.com/jbctechsolutions/focusvault/internal/domain/errors"
)

// Status represents the current state of a session as recorded by the remote service.
type Status string

const (
	StatusActive Status = "active" // Timer is running
	StatusPaused Status = "paused" // Timer is frozen
	StatusEnded  Status = "ended"  // Terminal, no further writes are valid
)

// ValidStatuses contains all valid session status values.
var ValidStatuses = []Status{StatusActive, StatusPaused, StatusEnded}

// IsValidStatus checks if a status string is a valid session status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if string(s) == status {
			return true
		}
	}
	return false
}

// Session is the client's cached copy of the remote session record.
// The remote service owns it; the cached copy may be stale.
type Session struct {
	ID          string `json:"sessionId"`
	Subject     string `json:"subject"`
	Status      Status `json:"status"`
	TargetTime  int    `json:"targetTime"`  // seconds; crossing it fires the alarm
	ElapsedTime int    `json:"elapsedTime"` // seconds, as last confirmed by the remote
	Notes       string `json:"notes,omitempty"`
}

// IsActive returns true if the session timer is running.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// IsPaused returns true if the session timer is frozen.
func (s *Session) IsPaused() bool {
	return s.Status == StatusPaused
}

// IsEnded returns true if the session reached its terminal state.
func (s *Session) IsEnded() bool {
	return s.Status == StatusEnded
}

// Validate checks the cached record for the fields the client relies on.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.NewError(errors.CodeValidation, "invalid session", errors.ErrSessionIDRequired)
	}
	if strings.TrimSpace(s.Subject) == "" {
		return errors.NewError(errors.CodeValidation, "invalid session", errors.ErrSubjectRequired)
	}
	if !IsValidStatus(string(s.Status)) {
		return errors.NewError(errors.CodeValidation, fmt.Sprintf("invalid session status %q", s.Status), nil)
	}
	if s.TargetTime < 0 || s.ElapsedTime < 0 {
		return errors.NewError(errors.CodeValidation, "session times must be non-negative", nil)
	}
	return nil
}

// CanTransition reports whether the session may move to the given status.
func (s *Session) CanTransition(to Status) error {
	switch {
	case s.Status == StatusEnded:
		return errors.ErrSessionEnded
	case to == StatusEnded:
		return nil
	case s.Status == StatusActive && to == StatusPaused:
		return nil
	case s.Status == StatusPaused && to == StatusActive:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, s.Status, to)
	}
}

// StartRequest holds the parameters for starting a new session remotely.
type StartRequest struct {
	Subject    string `json:"subject"`
	TargetTime int    `json:"targetTime"`
}

// Validate checks the start request.
func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return errors.NewError(errors.CodeValidation, "invalid start request", errors.ErrSubjectRequired)
	}
	if r.TargetTime <= 0 {
		return errors.NewError(errors.CodeValidation, "invalid start request", errors.ErrInvalidTarget)
	}
	return nil
}

// EndRequest is the body of the terminal end-session write.
type EndRequest struct {
	Notes string `json:"notes"`
}

// Patch is an overwrite of selected session fields. Nil fields are left
// untouched by the remote. Every field is "set to", never "add to", which is
// what makes replaying a patch idempotent.
type Patch struct {
	Status      *Status `json:"status,omitempty"`
	ElapsedTime *int    `json:"elapsedTime,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.ElapsedTime == nil && p.Notes == nil
}

// Apply overwrites the patched fields on s.
func (p Patch) Apply(s *Session) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ElapsedTime != nil {
		s.ElapsedTime = *p.ElapsedTime
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
}

// StatusPtr returns a pointer to st, for building patches.
func StatusPtr(st Status) *Status { return &st }

// IntPtr returns a pointer to v, for building patches.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v, for building patches.
func StringPtr(v string) *string { return &v }
