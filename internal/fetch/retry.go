package fetch

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetry makes up to five attempts, waiting 1s, 2s, 4s and 8s in between.
var DefaultRetry = Retry{Attempts: 5, BaseDelay: time.Second}

// Retry is a bounded retry budget with exponential backoff.
type Retry struct {
	Attempts  int
	BaseDelay time.Duration
}

// Policy returns the backoff schedule of r bound to ctx: no jitter, the delay
// doubling from BaseDelay, and Attempts-1 retries.
func (r Retry) Policy(ctx context.Context) backoff.BackOffContext {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.BaseDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds, the budget is spent or ctx is done.
// ErrNotFound is permanent and returned at once. The error of the last
// attempt is returned.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return backoff.Retry(func() error {
		err := fn(ctx)
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, r.Policy(ctx))
}
