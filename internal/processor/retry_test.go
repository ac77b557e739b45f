package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noSleep(recorded *[]time.Duration) RetryOption {
	return withSleep(func(_ context.Context, d time.Duration) error {
		if recorded != nil {
			*recorded = append(*recorded, d)
		}
		return nil
	})
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	tests := []struct {
		name     string
		failures int
	}{
		{name: "first try", failures: 0},
		{name: "one failure", failures: 1},
		{name: "four failures", failures: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := WithRetry(context.Background(), "create_checkout", func(context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", newError(KindConnection, "create_checkout", 0, "refused", nil)
				}
				return "session_1", nil
			}, noSleep(nil))

			assert.NoError(t, err)
			assert.Equal(t, "session_1", result)
			assert.Equal(t, tt.failures+1, calls)
		})
	}
}

func TestWithRetry_DelaysGrow(t *testing.T) {
	var delays []time.Duration
	calls := 0
	_, err := WithRetry(context.Background(), "create_checkout", func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, newError(KindIdempotencyConflict, "create_checkout", 409, "in flight", nil)
		}
		return 1, nil
	}, noSleep(&delays))

	assert.NoError(t, err)
	assert.Len(t, delays, 3)
	// Base delays double; jitter adds at most 100ms on top of each.
	base := 500 * time.Millisecond
	for i, d := range delays {
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+maxJitter)
		if i < len(delays)-1 {
			assert.Less(t, d, delays[i+1])
		}
		base *= 2
	}
}

func TestWithRetry_ObserverCountsRetriedAttempts(t *testing.T) {
	var observed []string
	calls := 0
	result, err := WithRetry(context.Background(), "create_checkout", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", newError(KindConnection, "create_checkout", 0, "refused", nil)
		}
		return "session_1", nil
	}, noSleep(nil), WithRetryObserver(func(_ context.Context, op string) {
		observed = append(observed, op)
	}))

	assert.NoError(t, err)
	assert.Equal(t, "session_1", result)
	// Two failed attempts were retried; the first attempt and the
	// successful one are not observed.
	assert.Equal(t, []string{"create_checkout", "create_checkout"}, observed)
}

func TestWithRetry_ObserverSkipsFinalAttempt(t *testing.T) {
	observed := 0
	_, err := WithRetry(context.Background(), "create_refund", func(context.Context) (string, error) {
		return "", newError(KindConnection, "create_refund", 0, "refused", nil)
	}, noSleep(nil), WithMaxRetries(3), WithRetryObserver(func(context.Context, string) {
		observed++
	}))

	assert.Error(t, err)
	assert.Equal(t, 2, observed)
}

func TestWithRetry_NonRetryablePropagatesImmediately(t *testing.T) {
	calls := 0
	apiErr := newError(KindAPI, "create_checkout", 400, "bad amount", nil)
	_, err := WithRetry(context.Background(), "create_checkout", func(context.Context) (string, error) {
		calls++
		return "", apiErr
	}, noSleep(nil))

	assert.ErrorIs(t, err, ErrProcessor)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), "create_refund", func(context.Context) (string, error) {
		calls++
		return "", newError(KindConnection, "create_refund", 0, "refused", nil)
	}, noSleep(nil), WithMaxRetries(3))

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "retries exhausted")

	var perr *Error
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, KindConnection, perr.Kind)
}

func TestWithRetry_ContextCancellationStopsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, "create_checkout", func(context.Context) (string, error) {
		calls++
		cancel()
		return "", newError(KindConnection, "create_checkout", 0, "refused", nil)
	}, WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable_Classification(t *testing.T) {
	assert.True(t, IsRetryable(newError(KindIdempotencyConflict, "op", 409, "", nil)))
	assert.True(t, IsRetryable(newError(KindConnection, "op", 0, "", nil)))
	assert.False(t, IsRetryable(newError(KindAPI, "op", 422, "", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
