package resilience

import (
	"context"
	"errors"
	"net"
)

// retryableError wraps an error that a caller may retry without re-entering
// already-captured data.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// AsRetryable marks err retryable. Returns nil for a nil err.
func AsRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Retryable reports whether err is worth retrying. Network failures,
// deadline expiry and an open breaker are transient; everything else needs a
// code or input change first.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded)
}
