// Package retry wraps transient dependency calls with exponential
// backoff and jitter, grounded on cenkalti/backoff/v5's retry.Do usage
// pattern, per spec.md §5's "transient dependency failures are retried
// with exponential backoff and jitter, up to a bounded attempt count."
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ragline/ragline/internal/ragerr"
)

// Policy bounds how a Do call retries.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy mirrors spec.md §6's REMOTE_RETRY_ATTEMPTS default.
func DefaultPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Do runs fn, retrying only errors classified as transient by ragerr
// (DependencyTransient, MalformedUpstream). Any other error, or a
// context cancellation, stops retrying immediately.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fn(ctx)
		if err != nil && ragerr.Transient(err) {
			return v, err
		}
		if err != nil {
			return v, backoff.Permanent(err)
		}
		return v, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
}
