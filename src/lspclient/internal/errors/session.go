package errors

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// TransportError indicates that a request failed on the wire or the server answered with an error.
type TransportError struct {
	Method string
	Err    error
}

// Error is an implementation of the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %q: %v", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates that no response arrived within the bounded wait.
type TimeoutError struct {
	Category string
	Timeout  time.Duration
}

// Error is an implementation of the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request timed out after %v", e.Category, e.Timeout)
}

// SessionCrashedError indicates that the session's server or transport failed.
type SessionCrashedError struct {
	Session uuid.UUID
	Cause   error
}

// Error is an implementation of the error interface.
func (e *SessionCrashedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("session %q crashed", e.Session)
	}
	return fmt.Sprintf("session %q crashed: %v", e.Session, e.Cause)
}

// Unwrap returns the crash cause.
func (e *SessionCrashedError) Unwrap() error {
	return e.Cause
}

// SessionClosedError indicates that the session is no longer usable.
type SessionClosedError struct {
	Session uuid.UUID
	State   string
}

// Error is an implementation of the error interface.
func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session %q is %s", e.Session, e.State)
}

// ServerExhaustedError indicates that a server crashed more often than its restart budget allows.
// It is not started again for the lifetime of the pool.
type ServerExhaustedError struct {
	Name     string
	Restarts int
}

// Error is an implementation of the error interface.
func (e *ServerExhaustedError) Error() string {
	return fmt.Sprintf("language server %q crashed after %d restarts and is not started again", e.Name, e.Restarts)
}
