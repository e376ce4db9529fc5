// Package backend unifies every LLM provider behind one capability set:
// {generate(prompt, params) -> Result, close()}. Each adapter owns only
// wire-format concerns (request shape, response parsing, code-fence
// stripping); rate limiting, retries, circuit breaking, and cost
// tracking live one layer up in internal/reliability.
package backend

import (
	"context"
	"time"

	"llmc/internal/errs"
)

// Params configures one Generate call.
type Params struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Result is the outcome of a successful Generate call.
type Result struct {
	Text       string
	TokensIn   int
	TokensOut  int
	LatencyMS  int64
}

// Adapter is the capability set every backend exposes, local or remote:
// generate, timeouts, JSON parsing are each adapter's own concern; the
// pipeline only ever holds this interface.
type Adapter interface {
	Generate(ctx context.Context, prompt string, params Params) (Result, error)
	Close() error
	// Tier is the cascade member name this adapter was constructed for
	// (e.g. "local_small"), used by FailureRecord bookkeeping.
	Tier() string
}

// HealthChecker is an optional interface an Adapter may implement to
// report live reachability. No adapter in this package implements it,
// and the status command does not call it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// classify maps a transport-level failure to a BackendError category
// via the shared errs.Kind taxonomy.
func classify(op string, statusCode int, err error) error {
	switch {
	case err == context.Canceled || err == context.DeadlineExceeded:
		return errs.New(errs.Cancelled, op, err)
	case statusCode == 429:
		return errs.New(errs.QuotaExhausted, op, err)
	case statusCode >= 500:
		return errs.New(errs.BackendHTTP, op, err)
	case statusCode >= 400:
		return errs.New(errs.BackendHTTP, op, err)
	default:
		return errs.New(errs.BackendTimeout, op, err)
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
