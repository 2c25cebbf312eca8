// Package retry retries an idempotent store read once, after a short
// backoff, so a single dropped connection does not fail a login.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/repository"
)

const (
	maxRetries      = 1
	initialInterval = 50 * time.Millisecond
	maxInterval     = 250 * time.Millisecond
)

func policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// Permanent reports whether err is an answer rather than a failure.
func Permanent(err error) bool {
	if errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrDuplicate) ||
		errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ae *autherr.Error
	return errors.As(err, &ae)
}

// Read runs op and retries a transient error once.
func Read[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && Permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy(ctx))
}

// Do is Read for operations without a result.
func Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Read(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
