package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError marks a failure worth retrying: timeouts, connection
// resets, backend overload. The registry retries the same provider once
// before moving to the next candidate.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying the same provider cannot fix:
// rejected requests, auth failures, unsupported models. The registry moves
// straight to the next candidate.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// classifyHTTPError maps a transport error or status code onto the
// transient/permanent split. Context cancellation passes through unwrapped so
// the registry can tell caller cancellation apart from backend failure.
func classifyHTTPError(err error, status int) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Transient(err)
		}
		// Connection refused, DNS failures and the like: the backend may
		// come back.
		return Transient(err)
	}
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return Transient(fmt.Errorf("backend status %d", status))
	default:
		return Permanent(fmt.Errorf("backend status %d", status))
	}
}
