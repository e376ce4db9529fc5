package reliability

import (
	"sync"
	"time"

	"llmc/internal/errs"
)

// circuitState is the breaker's own small state machine, implemented
// directly on the phase-tracking idiom of the teacher's
// ShardExecutionState (api_scheduler.go) rather than a third-party
// breaker library — no example repo in the retrieval pack imports one
// (see DESIGN.md).
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// failureThreshold and openDuration: after 5 consecutive failures the
// breaker opens for 60s; the first call after that opening window is a
// half-open probe — success closes the breaker again, failure re-opens
// it.
const (
	failureThreshold = 5
	openDuration     = 60 * time.Second
)

// CircuitBreaker is a per-backend breaker guarding outbound calls.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       circuitState
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{}
}

// Allow reports whether a call may proceed, per the breaker state
// machine. A half-open breaker allows exactly one in-flight probe at a
// time; concurrent callers are rejected with CircuitOpen until the probe
// resolves.
func (b *CircuitBreaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true, nil
	case circuitOpen:
		if time.Since(b.openedAt) >= openDuration {
			b.state = circuitHalfOpen
			b.probeInFlight = true
			return true, nil
		}
		return false, errs.New(errs.CircuitOpen, "reliability.CircuitBreaker.Allow", errCircuitOpen)
	case circuitHalfOpen:
		if b.probeInFlight {
			return false, errs.New(errs.CircuitOpen, "reliability.CircuitBreaker.Allow", errCircuitOpen)
		}
		b.probeInFlight = true
		return true, nil
	}
	return true, nil
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = circuitClosed
	b.failures = 0
	b.probeInFlight = false
}

// RecordFailure increments the consecutive-failure count, opening the
// breaker once it reaches failureThreshold, and re-opens immediately on
// a half-open probe's failure.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}

	b.failures++
	b.probeInFlight = false
	if b.failures >= failureThreshold {
		b.state = circuitOpen
		b.openedAt = time.Now()
	}
}

var errCircuitOpen = circuitOpenError{}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "circuit open: too many consecutive failures" }
