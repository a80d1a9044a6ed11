package provider

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

// Breaker states.
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker protects a downstream call path from a failing dependency.
// After failureThreshold consecutive failures the breaker opens and rejects
// calls for the timeout duration, then permits a single half-open trial call
// that closes the breaker on success or re-opens it on failure.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            BreakerState
	failureThreshold int
	timeout          time.Duration
	failures         int
	lastFailure      time.Time
	trialInFlight    bool
	now              func() time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker.
func NewCircuitBreaker(failureThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning to half-open when
// the open-state cooldown has elapsed. In the half-open state only one trial
// call is admitted at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.timeout {
			cb.state = BreakerHalfOpen
			cb.trialInFlight = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess records a successful call, closing the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = BreakerClosed
	cb.failures = 0
	cb.trialInFlight = false
}

// RecordFailure records a failed call, opening the breaker when the
// consecutive-failure threshold is reached or a half-open trial fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()
	cb.trialInFlight = false

	if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = BreakerOpen
	}
}

// BreakerStatus is a point-in-time snapshot for health reporting.
type BreakerStatus struct {
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure *time.Time   `json:"last_failure,omitempty"`
}

// Status returns the current breaker state, consecutive failure count, and
// last failure time.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	status := BreakerStatus{
		State:    cb.state,
		Failures: cb.failures,
	}
	if !cb.lastFailure.IsZero() {
		t := cb.lastFailure
		status.LastFailure = &t
	}
	return status
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
