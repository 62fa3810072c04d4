package provider

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
)

// CircuitBreaker stops the pool from hammering an endpoint that keeps failing.
//
//   - closed: calls pass; threshold consecutive failures open it.
//   - open: calls are refused until cooldown has elapsed, then half-open.
//   - half_open: a limited number of probes pass; success closes, failure reopens.
type CircuitBreaker struct {
	mu               sync.Mutex
	endpoint         string
	state            string
	consecutiveFails int
	threshold        int
	cooldown         time.Duration
	lastFailure      time.Time
	halfOpenAllowed  int
	halfOpenCount    int
	onTrip           func(endpoint string)
}

// NewCircuitBreaker creates a closed breaker for one endpoint.
func NewCircuitBreaker(endpoint string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		endpoint:        endpoint,
		state:           config.CircuitClosed,
		threshold:       threshold,
		cooldown:        cooldown,
		halfOpenAllowed: config.CircuitBreakerHalfOpenMax,
	}
}

// OnTrip registers a callback invoked each time the breaker opens.
func (cb *CircuitBreaker) OnTrip(fn func(endpoint string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = fn
}

// Allow reports whether a call may go through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case config.CircuitClosed:
		return true

	case config.CircuitOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return false
		}
		slog.Debug("circuit breaker half-open",
			"endpoint", cb.endpoint,
			"consecutiveFails", cb.consecutiveFails,
		)
		cb.state = config.CircuitHalfOpen
		cb.halfOpenCount = 1
		return true

	case config.CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenAllowed {
			cb.halfOpenCount++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != config.CircuitClosed {
		slog.Info("circuit breaker closed",
			"endpoint", cb.endpoint,
			"previousState", cb.state,
		)
	}

	cb.consecutiveFails = 0
	cb.state = config.CircuitClosed
	cb.halfOpenCount = 0
}

// RecordFailure counts a failure and opens the breaker at threshold,
// or immediately when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()

	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	trip := cb.state == config.CircuitHalfOpen ||
		(cb.state == config.CircuitClosed && cb.consecutiveFails >= cb.threshold)
	if trip {
		slog.Warn("circuit breaker opened",
			"endpoint", cb.endpoint,
			"previousState", cb.state,
			"consecutiveFails", cb.consecutiveFails,
			"threshold", cb.threshold,
		)
		cb.state = config.CircuitOpen
		cb.halfOpenCount = 0
	}

	onTrip := cb.onTrip
	cb.mu.Unlock()

	if trip && onTrip != nil {
		onTrip(cb.endpoint)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure count.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
