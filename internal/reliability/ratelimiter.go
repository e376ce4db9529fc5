// Package reliability wraps a backend.Adapter with the middleware a
// remote LLM call needs under real traffic: a token-bucket rate
// limiter, exponential backoff with jitter, a circuit breaker, and a
// daily/monthly cost ceiling. Grounded on the teacher's
// internal/core/api_scheduler.go slot/backoff shape, reparametrized to
// a base=1s/cap=60s/max-5-attempts policy and backed by real libraries
// (cenkalti/backoff, x/time/rate) instead of the teacher's hand-rolled
// formula.
package reliability

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket sized by requests-per-minute and
// tokens-per-minute. A zero RPM or TPM disables that dimension's
// limiting (treated as unlimited), matching the teacher's "0 means no
// semaphore" convention in APISchedulerConfig.
type RateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewRateLimiter builds a limiter from requests-per-minute and
// tokens-per-minute ceilings. The bucket burst equals one minute's worth
// of budget, so a quiet period lets one full minute of traffic through
// immediately, then throttles to the steady rate.
func NewRateLimiter(rpm, tpm int) *RateLimiter {
	rl := &RateLimiter{}
	if rpm > 0 {
		rl.requests = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	}
	if tpm > 0 {
		rl.tokens = rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)
	}
	return rl
}

// Wait blocks cooperatively until both the request-count and
// estimated-token budgets admit one call of estimatedTokens size, or
// ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if rl == nil {
		return nil
	}
	if rl.requests != nil {
		if err := rl.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if rl.tokens != nil && estimatedTokens > 0 {
		// WaitN requires burst >= n; cap the request against the
		// configured burst so a single outsized prompt doesn't
		// deadlock the limiter waiting for a bucket it can never fill.
		n := estimatedTokens
		if b := rl.tokens.Burst(); n > b {
			n = b
		}
		if err := rl.tokens.WaitN(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
