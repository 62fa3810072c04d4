package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"golang.org/x/time/rate"
)

// RateLimiter paces calls to one endpoint. A throttling response pauses the
// endpoint through Backoff; time spent waiting is exported per endpoint.
type RateLimiter struct {
	limiter *rate.Limiter
	name    string
	metrics *metrics.Metrics

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimiter allows rps requests per second with a burst of one.
func NewRateLimiter(name string, rps int, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		name:    name,
		metrics: m,
	}
}

// Wait blocks until the endpoint is neither paused nor over its rate, or
// until ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()

	if pause := rl.Paused(); pause > 0 {
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	if err := rl.limiter.Wait(ctx); err != nil {
		slog.Debug("rate limiter wait cancelled", "endpoint", rl.name, "error", err)
		return err
	}

	if waited := time.Since(start); waited > time.Millisecond {
		rl.metrics.RateLimitWait(rl.name, waited)
	}
	return nil
}

// Backoff pauses the endpoint for d, or for config.RateLimitBackoff when the
// server gave no delay. A shorter pause never cuts a longer one short.
func (rl *RateLimiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = config.RateLimitBackoff
	}
	until := time.Now().Add(d)

	rl.mu.Lock()
	if until.After(rl.pausedUntil) {
		rl.pausedUntil = until
	}
	rl.mu.Unlock()

	slog.Warn("endpoint throttled, pausing calls", "endpoint", rl.name, "pause", d)
}

// Paused returns how long the endpoint stays paused, or zero.
func (rl *RateLimiter) Paused() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if d := time.Until(rl.pausedUntil); d > 0 {
		return d
	}
	return 0
}
