// Package resilience provides the retry and circuit-breaker helpers used by
// the propagation check command. The hook path itself never retries: the
// certificate client owns repetition there.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitOption configures WaitFor
type WaitOption func(*waitConfig)

type waitConfig struct {
	maxElapsed   time.Duration
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	onRetry      func(err error, next time.Duration)
}

// WithMaxElapsed sets the maximum total time to keep waiting
func WithMaxElapsed(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.maxElapsed = d
	}
}

// WithInitialDelay sets the delay before the second attempt
func WithInitialDelay(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.initialDelay = d
	}
}

// WithMaxDelay caps the delay between attempts
func WithMaxDelay(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.maxDelay = d
	}
}

// WithOnRetry sets a callback invoked before each wait
func WithOnRetry(fn func(err error, next time.Duration)) WaitOption {
	return func(c *waitConfig) {
		c.onRetry = fn
	}
}

// WaitFor runs operation with exponential backoff until it succeeds, the
// elapsed budget runs out, or ctx is cancelled. DNS propagation can take
// hours, so the default budget is generous and the delay grows quickly.
func WaitFor(ctx context.Context, operation func() error, opts ...WaitOption) error {
	cfg := &waitConfig{
		maxElapsed:   10 * time.Minute,
		initialDelay: 5 * time.Second,
		maxDelay:     2 * time.Minute,
		multiplier:   2.0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.MaxInterval = cfg.maxDelay
	b.MaxElapsedTime = cfg.maxElapsed
	b.Multiplier = cfg.multiplier
	b.RandomizationFactor = 0.1

	bo := backoff.WithContext(b, ctx)

	if cfg.onRetry != nil {
		return backoff.RetryNotify(operation, bo, cfg.onRetry)
	}
	return backoff.Retry(operation, bo)
}

// Permanent marks an error as not worth waiting on
func Permanent(err error) error {
	return backoff.Permanent(err)
}
