// Package ratelimit spaces outbound source requests with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/adintel/internal/metrics"
)

// Limiter enforces a minimum interval of 1/RPS between consecutive calls to
// Wait. Each collector owns its own Limiter; limits are never shared across
// sources.
type Limiter struct {
	limiter *rate.Limiter
	label   string
}

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the maximum request rate. Values <= 0 disable limiting.
	RPS float64
	// Label tags the wait histogram, typically the platform name.
	Label string
}

// New creates a Limiter with a burst of one so the first call is immediate and
// every subsequent call waits for the full interval.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	label := cfg.Label
	if label == "" {
		label = "unknown"
	}
	return &Limiter{
		limiter: rate.NewLimiter(r, 1),
		label:   label,
	}
}

// Interval reports the minimum spacing enforced between calls.
func (l *Limiter) Interval() time.Duration {
	if l.limiter.Limit() == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Wait blocks until the next call is allowed, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(l.label, waited)
	}
	return nil
}
