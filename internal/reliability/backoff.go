package reliability

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAttempts is the retry budget for one backend call.
const maxAttempts = 5

// newBackoff builds a base=1s/cap=60s exponential-backoff-with-jitter
// policy using cenkalti/backoff/v4's ExponentialBackOff rather than the
// teacher's hand-rolled `1<<attempt * 100ms capped 5s` formula in
// api_scheduler.go — the library already implements randomized jitter
// around the exponential curve without reimplementing it by hand.
func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // bounded by maxAttempts via WithMaxRetries, not elapsed time
	b.RandomizationFactor = 0.5
	return backoff.WithMaxRetries(b, maxAttempts-1)
}

// Retry runs op up to maxAttempts times, waiting the backoff policy's
// interval between attempts, and returns shouldRetry's verdict on each
// error to decide whether to continue the loop. Cancellation aborts
// the wait immediately and is never treated as a retryable failure.
func Retry(ctx context.Context, shouldRetry func(error) bool, op func() error) error {
	policy := backoff.WithContext(newBackoff(), ctx)
	var lastErr error

	retryable := func() error {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(retryable, policy); err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return permanent.Err
		}
		return lastErr
	}
	return nil
}
