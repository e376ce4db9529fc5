package reliability

import (
	"context"

	"go.uber.org/zap"

	"llmc/internal/backend"
	"llmc/internal/errs"
)

// Middleware wraps one backend.Adapter with rate limiting, retry
// backoff, a circuit breaker, and a cost ceiling, and itself satisfies
// backend.Adapter so the enrichment pipeline never needs to know whether
// it is holding a bare adapter or a wrapped one.
//
// A Middleware instance is owned by whoever constructs it: the pipeline
// injects one per (repo, tier) unless a provider's quota is genuinely
// shared across repos, in which case the same instance is injected into
// each repo's cascade deliberately.
type Middleware struct {
	adapter   backend.Adapter
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	cost      *CostTracker
	costPer1K float64
	logger    *zap.Logger
}

// Config parametrizes one Middleware instance from the cascade member's
// BackendConfig fields.
type Config struct {
	RPM                int
	TPM                int
	DailyUSDCap        float64
	MonthlyUSDCap      float64
	CostPer1KTokensUSD float64
}

func New(adapter backend.Adapter, cfg Config, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		adapter:   adapter,
		limiter:   NewRateLimiter(cfg.RPM, cfg.TPM),
		breaker:   NewCircuitBreaker(),
		cost:      NewCostTracker(cfg.DailyUSDCap, cfg.MonthlyUSDCap),
		costPer1K: cfg.CostPer1KTokensUSD,
		logger:    logger,
	}
}

func (m *Middleware) Tier() string { return m.adapter.Tier() }
func (m *Middleware) Close() error { return m.adapter.Close() }

// Generate runs the full middleware stack: rate limiter, circuit
// breaker, cost ceiling, then backoff-wrapped retries of the wrapped
// adapter's Generate, recording each attempt's outcome against the
// breaker. The cost reservation is settled once, after the retries end.
func (m *Middleware) Generate(ctx context.Context, prompt string, params backend.Params) (backend.Result, error) {
	estimatedTokens := estimateTokens(prompt, params)

	if err := m.limiter.Wait(ctx, estimatedTokens); err != nil {
		return backend.Result{}, errs.New(errs.Cancelled, "reliability.Middleware.Generate", err)
	}

	estimatedCost := m.costPer1K * float64(estimatedTokens) / 1000.0
	if estimatedCost > 0 {
		if err := m.cost.CheckAndReserve(estimatedCost); err != nil {
			return backend.Result{}, err
		}
	}

	var result backend.Result
	retryErr := Retry(ctx, m.shouldRetry, func() error {
		allowed, err := m.breaker.Allow()
		if !allowed {
			return err
		}

		res, genErr := m.adapter.Generate(ctx, prompt, params)
		if genErr != nil {
			m.breaker.RecordFailure()
			// QuotaExhausted is not in errs.Retryable's set, so shouldRetry
			// rejects it immediately and the cascade escalates to the next
			// tier rather than retrying here.
			return genErr
		}
		m.breaker.RecordSuccess()
		result = res
		return nil
	})

	if retryErr != nil {
		if estimatedCost > 0 {
			m.cost.Release(estimatedCost)
		}
		return backend.Result{}, retryErr
	}

	if estimatedCost > 0 && result.TokensIn+result.TokensOut > 0 {
		actualCost := m.costPer1K * float64(result.TokensIn+result.TokensOut) / 1000.0
		m.cost.Release(estimatedCost - actualCost)
	}

	return result, nil
}

func (m *Middleware) shouldRetry(err error) bool {
	return errs.Retryable(errs.KindOf(err))
}

// estimateTokens is a rough chars/4 heuristic, adequate for rate-limiter
// budgeting (not billing precision) — the same order-of-magnitude
// estimate the teacher's client code uses informally via string length
// logging rather than a real tokenizer.
func estimateTokens(prompt string, params backend.Params) int {
	n := len(prompt) + len(params.SystemPrompt)
	est := n / 4
	if params.MaxTokens > 0 {
		est += params.MaxTokens
	}
	return est
}
