// Package errors provides domain-specific errors for the focusvault application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionEnded       = errors.New("session already ended")
	ErrSessionInProgress  = errors.New("a session is already in progress")
	ErrSessionIDRequired  = errors.New("session ID required")
	ErrSubjectRequired    = errors.New("subject required")
	ErrInvalidTarget      = errors.New("target time must be positive")
	ErrInvalidCheckpoint  = errors.New("invalid checkpoint")
	ErrRemoteUnreachable  = errors.New("remote unreachable")
	ErrRemoteRejected     = errors.New("remote rejected request")
	ErrNotQueueable       = errors.New("request cannot be queued")
	ErrControllerStopped  = errors.New("controller stopped")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrWriteExpired       = errors.New("queued write expired")
	ErrBacklogPending     = errors.New("queued behind pending writes")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTransient     ErrorCode = "TRANSIENT"
	CodeRejected      ErrorCode = "REJECTED"
	CodeStorage       ErrorCode = "STORAGE"
	CodeConfiguration ErrorCode = "CONFIG"
)

// FocusVaultError wraps errors with additional context for debugging and handling.
type FocusVaultError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *FocusVaultError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *FocusVaultError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FocusVaultError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *FocusVaultError {
	return &FocusVaultError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *FocusVaultError, key string, value interface{}) *FocusVaultError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// Transient wraps cause as a transient-network failure. The write may be
// queued and replayed later.
func Transient(message string, cause error) *FocusVaultError {
	if cause == nil {
		cause = ErrRemoteUnreachable
	}
	return NewError(CodeTransient, message, cause)
}

// Rejected wraps a definitive refusal by the remote service.
func Rejected(message string, status int) *FocusVaultError {
	err := NewError(CodeRejected, message, ErrRemoteRejected)
	return WithContext(err, "status", status)
}

// CodeOf returns the code of the first FocusVaultError in err's chain, or ""
// if there is none.
func CodeOf(err error) ErrorCode {
	var fv *FocusVaultError
	if errors.As(err, &fv) {
		return fv.Code
	}
	return ""
}

// IsTransient reports whether err is a transient-network failure.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransient || errors.Is(err, ErrRemoteUnreachable)
}

// IsRejected reports whether err is a remote rejection.
func IsRejected(err error) bool {
	return CodeOf(err) == CodeRejected || errors.Is(err, ErrRemoteRejected)
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
