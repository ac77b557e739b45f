package processor

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultMaxRetries   = 5
	defaultInitialDelay = 500 * time.Millisecond
	maxJitter           = 100 * time.Millisecond
)

type retryConfig struct {
	maxRetries   int
	initialDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	onRetry      func(ctx context.Context, op string)
}

type RetryOption func(*retryConfig)

func WithMaxRetries(n int) RetryOption {
	return func(c *retryConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithRetryObserver registers a callback invoked once per retried
// attempt, before the backoff sleep. Callers use it to count retries.
func WithRetryObserver(observe func(ctx context.Context, op string)) RetryOption {
	return func(c *retryConfig) { c.onRetry = observe }
}

// withSleep overrides the sleeper. Intended for tests.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(c *retryConfig) { c.sleep = sleep }
}

// WithRetry wraps one externally idempotent processor call that is
// already bound to a fixed idempotency key. Retryable failures
// (idempotency conflict, connection) back off exponentially with
// jitter; everything else propagates immediately. The key is never
// swapped mid-operation.
func WithRetry[T any](ctx context.Context, op string, fn func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	cfg := retryConfig{
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	delay := cfg.initialDelay
	var lastErr error

	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.maxRetries-1 {
			break
		}
		if cfg.onRetry != nil {
			cfg.onRetry(ctx, op)
		}
		jitter := time.Duration(rand.Int63n(int64(maxJitter)))
		if err := cfg.sleep(ctx, delay+jitter); err != nil {
			return zero, err
		}
		delay *= 2
	}

	return zero, fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, cfg.maxRetries, lastErr)
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
