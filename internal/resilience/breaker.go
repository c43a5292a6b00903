// Package resilience provides the failure-isolation primitives that gate
// every outbound call: a circuit breaker per upstream dependency, a sliding
// window rate limiter per endpoint class, and an error classifier that
// decides retry vs. wait vs. abort.
package resilience

import (
	"sync"
	"time"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation, requests pass
	StateOpen                         // failing, requests blocked
	StateHalfOpen                     // probing recovery with limited calls
)

// String returns the string representation of CircuitState
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTime     = 60 * time.Second
	defaultHalfOpenMaxCalls = 3
)

// BreakerConfig tunes a CircuitBreaker. Zero values take the defaults
// (threshold 5, recovery 60s, 3 half-open probes).
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTime     time.Duration
	HalfOpenMaxCalls int

	// OnStateChange is invoked on every transition, under the breaker's
	// lock. Keep it cheap and never call back into the breaker.
	OnStateChange func(name string, from, to CircuitState)
}

// CircuitBreaker blocks calls to an upstream that keeps failing, probes it
// after a recovery window, and reopens on the first probe failure.
//
// The Open -> HalfOpen transition is evaluated lazily whenever state is
// read; there is no background timer.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTime     time.Duration
	halfOpenMaxCalls int
	onStateChange    func(string, CircuitState, CircuitState)

	mu            sync.Mutex
	state         CircuitState
	failures      int
	successes     int
	halfOpenCalls int
	lastFailure   time.Time

	totalCalls    uint64
	totalFailures uint64
	totalBlocked  uint64
}

// NewCircuitBreaker creates a breaker for one logical upstream dependency.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.RecoveryTime <= 0 {
		cfg.RecoveryTime = defaultRecoveryTime
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTime:     cfg.RecoveryTime,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		onStateChange:    cfg.OnStateChange,
		state:            StateClosed,
	}
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state, applying the lazy Open -> HalfOpen
// recovery transition if the recovery window has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover(time.Now())
	return cb.state
}

// Allow reports whether a request may proceed. It must be called before
// every attempt, paired with RecordSuccess/RecordFailure afterwards.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover(time.Now())

	cb.totalCalls++

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		cb.totalBlocked++
		return false
	default: // StateHalfOpen: bounded probe budget
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		cb.totalBlocked++
		return false
	}
}

// RecordSuccess notes a successful call. Enough consecutive successes in
// half-open close the circuit; in closed state each success works one
// failure off the count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++

	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.halfOpenMaxCalls {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		if cb.failures > 0 {
			cb.failures--
		}
	}
}

// RecordFailure notes a failed call. Any failure while half-open reopens
// the circuit; hitting the threshold while closed opens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalFailures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

// Reset forces the breaker back to closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
}

// maybeRecover applies the lazy recovery transition. Caller holds mu.
func (cb *CircuitBreaker) maybeRecover(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.lastFailure) >= cb.recoveryTime {
		cb.transitionTo(StateHalfOpen)
	}
}

// transitionTo switches state and resets the counters the new state
// starts from. Caller holds mu.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	old := cb.state
	cb.state = newState

	switch newState {
	case StateHalfOpen:
		cb.halfOpenCalls = 0
		cb.successes = 0
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	}

	if cb.onStateChange != nil && old != newState {
		cb.onStateChange(cb.name, old, newState)
	}
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	Name           string
	State          string
	Failures       int
	TotalCalls     uint64
	TotalFailures  uint64
	TotalBlocked   uint64
	LastFailureAge time.Duration
}

// Stats returns a snapshot for logging and heartbeats.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover(time.Now())

	var age time.Duration
	if !cb.lastFailure.IsZero() {
		age = time.Since(cb.lastFailure)
	}

	return BreakerStats{
		Name:           cb.name,
		State:          cb.state.String(),
		Failures:       cb.failures,
		TotalCalls:     cb.totalCalls,
		TotalFailures:  cb.totalFailures,
		TotalBlocked:   cb.totalBlocked,
		LastFailureAge: age,
	}
}
