package protect

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is matched by the error a ChimeService returns when every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// AuthError is returned when the NVR rejects a login or omits the session headers.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("login failed (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("login failed: HTTP %d", e.Status)
}

// TransportError is a network level failure, timeouts included.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-200 answer to an authenticated request.
type ServerError struct {
	Op     string
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP status %d", e.Op, e.Status)
}

// ParseError means the NVR answered 200 with a body we cannot decode.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RetryError reports the last failure of an operation that ran out of attempts.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// IsRetryable reports whether err may go away by logging in again.
func IsRetryable(err error) bool {
	var (
		authErr      *AuthError
		serverErr    *ServerError
		transportErr *TransportError
	)
	return errors.As(err, &authErr) || errors.As(err, &serverErr) || errors.As(err, &transportErr)
}
