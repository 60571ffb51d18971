package eventsource

import (
	"context"
	"fmt"
	"log/slog"
)

// WithRetry runs fn, retrying it exactly once when retryable(err) holds. A
// retryable failure on the second attempt is escalated to ErrLostConnection;
// other errors are returned unchanged. A nil retryable uses IsRetryable.
func WithRetry[T any](ctx context.Context, op string, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	if retryable == nil {
		retryable = IsRetryable
	}

	v, err := fn(ctx)
	if err == nil || !retryable(err) {
		return v, err
	}
	if ctx.Err() != nil {
		return v, ctx.Err()
	}

	slog.Warn("retrying event source call", "op", op, "err", err)
	v, err = fn(ctx)
	if err == nil || !retryable(err) {
		return v, err
	}
	return v, fmt.Errorf("%s: %w: %w", op, ErrLostConnection, err)
}

// Do is WithRetry for calls without a result.
func Do(ctx context.Context, op string, retryable func(error) bool, fn func(context.Context) error) error {
	_, err := WithRetry(ctx, op, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
