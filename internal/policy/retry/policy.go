// Package retry re-runs transiently failing source fetches with capped
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultMinDelay    = 2 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// ErrTransient marks failures that are worth another attempt.
var ErrTransient = errors.New("transient failure")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config tunes a Policy.
type Config struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// Policy retries an operation up to MaxAttempts times. Delays double from
// MinDelay and are capped at MaxDelay, so they never decrease.
type Policy struct {
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
	sleep       Sleeper
	onRetry     func(attempt int, delay time.Duration, err error)
}

// Option customizes a Policy.
type Option func(*Policy)

// WithSleeper replaces the real timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithOnRetry registers a hook invoked before each retry.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// New builds a Policy, substituting defaults for unset values.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		minDelay:    cfg.MinDelay,
		maxDelay:    cfg.MaxDelay,
		sleep:       sleepContext,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.minDelay <= 0 {
		p.minDelay = DefaultMinDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = DefaultMaxDelay
	}
	if p.maxDelay < p.minDelay {
		p.maxDelay = p.minDelay
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts reports the attempt budget including the first try.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable after the given attempt.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before the attempt following the given one.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.minDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	return min(delay, p.maxDelay)
}

// Do runs op until it succeeds, fails permanently, or exhausts the attempt
// budget. It returns the number of retries performed alongside the last error.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt - 1, nil
		}
		if ctx.Err() != nil || !p.ShouldRetry(err, attempt) {
			if attempt > 1 {
				return attempt - 1, fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return 0, err
		}
		delay := p.Backoff(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, delay, err)
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			return attempt - 1, fmt.Errorf("retry backoff: %w", serr)
		}
	}
}

// IsTransient classifies network timeouts, dropped connections, and errors
// marked with ErrTransient as retryable. Cancellation never is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
