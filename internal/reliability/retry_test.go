package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("delays grow and cap at max interval", func(t *testing.T) {
		policy := NewExponentialBackoff(100*time.Millisecond, 1*time.Second, 2.0, 10)
		policy.Jitter = false

		assert.Equal(t, 100*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 200*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 400*time.Millisecond, policy.NextDelay(2))
		assert.Equal(t, 1*time.Second, policy.NextDelay(6))
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)

		shouldRetry, _ := policy.ShouldRetry(2, errors.New("transient"))
		assert.True(t, shouldRetry)

		shouldRetry, _ = policy.ShouldRetry(3, errors.New("transient"))
		assert.False(t, shouldRetry)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)

		shouldRetry, _ := policy.ShouldRetry(0, PermanentError{Err: errors.New("bad payload")})
		assert.False(t, shouldRetry)
	})
}

func TestFixedDelay(t *testing.T) {
	t.Run("delay is constant", func(t *testing.T) {
		policy := NewFixedDelay(50*time.Millisecond, 3)

		assert.Equal(t, 50*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 50*time.Millisecond, policy.NextDelay(2))
		assert.Equal(t, 3, policy.MaxRetries())
	})
}

func TestRetry(t *testing.T) {
	t.Run("returns nil when fn eventually succeeds", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 5), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error when policy gives up", func(t *testing.T) {
		lastErr := errors.New("still failing")
		attempts := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 2), func() error {
			attempts++
			return lastErr
		})

		assert.Equal(t, lastErr, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops immediately on permanent error", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 5), func() error {
			attempts++
			return PermanentError{Err: errors.New("bad payload")}
		})

		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Retry(ctx, NewFixedDelay(time.Millisecond, 5), func() error {
			return errors.New("transient")
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}
