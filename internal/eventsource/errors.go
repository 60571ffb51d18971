package eventsource

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrRetryable marks a transient upstream failure. WithRetry retries it
	// once before escalating to ErrLostConnection.
	ErrRetryable = errors.New("event source temporarily unavailable")

	// ErrLostConnection means the session's connection to the event source
	// is gone and must be re-established before continuing.
	ErrLostConnection = errors.New("lost connection to event source")

	// ErrEventClosed is returned when changing the state of a closed event.
	ErrEventClosed = errors.New("event is closed")

	// ErrNotFound is returned for ids the event source does not know.
	ErrNotFound = errors.New("event not found")

	// ErrAuthentication is returned by Connect for rejected credentials.
	ErrAuthentication = errors.New("event source rejected credentials")
)

// IsRetryable reports whether err is a transient failure worth one retry.
// Cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrLostConnection) {
		return false
	}
	if errors.Is(err, ErrRetryable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return os.IsTimeout(err)
}
