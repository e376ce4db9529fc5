package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"llmc/internal/backend"
	"llmc/internal/errs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubAdapter lets each test script a sequence of Generate outcomes.
type stubAdapter struct {
	calls   int
	results []backend.Result
	errs    []error
}

func (s *stubAdapter) Generate(ctx context.Context, prompt string, params backend.Params) (backend.Result, error) {
	i := s.calls
	s.calls++
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	var err error
	if i >= 0 && i < len(s.errs) {
		err = s.errs[i]
	}
	var res backend.Result
	if i >= 0 && i < len(s.results) {
		res = s.results[i]
	}
	return res, err
}

func (s *stubAdapter) Close() error  { return nil }
func (s *stubAdapter) Tier() string  { return "stub" }

func TestMiddlewareRetriesOnTransientFailureThenSucceeds(t *testing.T) {
	adapter := &stubAdapter{
		errs:    []error{errs.New(errs.BackendTimeout, "stub.Generate", errors.New("timeout"))},
		results: []backend.Result{{}, {Text: "ok", TokensIn: 10, TokensOut: 5}},
	}
	// Second call (index 1) has no scripted error, so it succeeds.
	adapter.errs = append(adapter.errs, nil)

	mw := New(adapter, Config{}, nil)
	res, err := mw.Generate(context.Background(), "prompt", backend.Params{})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Text)
	require.GreaterOrEqual(t, adapter.calls, 2)
}

func TestMiddlewareDoesNotRetryQuotaExhausted(t *testing.T) {
	adapter := &stubAdapter{
		errs: []error{errs.New(errs.QuotaExhausted, "stub.Generate", errors.New("429"))},
	}
	mw := New(adapter, Config{}, nil)
	_, err := mw.Generate(context.Background(), "prompt", backend.Params{})
	require.Error(t, err)
	require.Equal(t, errs.QuotaExhausted, errs.KindOf(err))
	require.Equal(t, 1, adapter.calls)
}

func TestMiddlewareOpensCircuitAfterConsecutiveFailures(t *testing.T) {
	failure := errs.New(errs.BackendHTTP, "stub.Generate", errors.New("500"))
	adapter := &stubAdapter{}
	for i := 0; i < failureThreshold; i++ {
		adapter.errs = append(adapter.errs, failure)
	}

	mw := New(adapter, Config{}, nil)
	// Drive the breaker to open by recording failures directly, bypassing
	// the outer Retry loop's own retries so the attempt count is exact.
	for i := 0; i < failureThreshold; i++ {
		mw.breaker.RecordFailure()
	}

	_, err := mw.Generate(context.Background(), "prompt", backend.Params{})
	require.Error(t, err)
	require.Equal(t, errs.CircuitOpen, errs.KindOf(err))
}

func TestMiddlewareEnforcesCostCeiling(t *testing.T) {
	adapter := &stubAdapter{
		results: []backend.Result{{Text: "ok", TokensIn: 1000, TokensOut: 1000}},
	}
	mw := New(adapter, Config{
		DailyUSDCap:        0.001,
		CostPer1KTokensUSD: 100.0,
	}, nil)

	_, err := mw.Generate(context.Background(), "a very long prompt indeed", backend.Params{MaxTokens: 1000})
	require.Error(t, err)
	require.Equal(t, errs.BudgetExceeded, errs.KindOf(err))
	require.Equal(t, 0, adapter.calls, "cost ceiling must reject before the adapter is ever called")
}

func TestRateLimiterBlocksUntilContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx, 0))

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	// Second call exceeds the 1 rpm burst and must block until ctx2 expires.
	err := rl.Wait(ctx2, 0)
	require.Error(t, err)
}

func TestCircuitBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	b := NewCircuitBreaker()
	for i := 0; i < failureThreshold; i++ {
		b.RecordFailure()
	}
	allowed, err := b.Allow()
	require.False(t, allowed)
	require.Equal(t, errs.CircuitOpen, errs.KindOf(err))

	b.openedAt = time.Now().Add(-openDuration - time.Second)
	allowed, err = b.Allow()
	require.True(t, allowed)
	require.NoError(t, err)

	allowed, err = b.Allow()
	require.False(t, allowed, "a second concurrent probe must be rejected while one is in flight")
	require.Equal(t, errs.CircuitOpen, errs.KindOf(err))

	b.RecordSuccess()
	allowed, err = b.Allow()
	require.True(t, allowed)
	require.NoError(t, err)
}

func TestCostTrackerDailyCapAtPointZeroZeroOnePrecision(t *testing.T) {
	ct := NewCostTracker(1.000, 0)
	require.NoError(t, ct.CheckAndReserve(0.999))
	require.NoError(t, ct.CheckAndReserve(0.001))
	err := ct.CheckAndReserve(0.001)
	require.Error(t, err)
	require.Equal(t, errs.BudgetExceeded, errs.KindOf(err))

	ct.Release(0.001)
	require.NoError(t, ct.CheckAndReserve(0.001))
}
