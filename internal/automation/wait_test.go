package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitUntil(t *testing.T) {
	t.Run("returns once condition holds", func(t *testing.T) {
		calls := 0
		err := WaitUntil(context.Background(), WaitOptions{Timeout: time.Second, Interval: time.Millisecond}, func() (bool, error) {
			calls++
			return calls == 3, nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("times out after budget", func(t *testing.T) {
		calls := 0
		err := WaitUntil(context.Background(), WaitOptions{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond}, func() (bool, error) {
			calls++
			return false, nil
		})

		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.Equal(t, 5, calls)
	})

	t.Run("condition errors count as false", func(t *testing.T) {
		err := WaitUntil(context.Background(), WaitOptions{Timeout: 20 * time.Millisecond, Interval: 10 * time.Millisecond}, func() (bool, error) {
			return true, errors.New("detached")
		})

		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.Contains(t, err.Error(), "detached")
	})

	t.Run("at least one attempt", func(t *testing.T) {
		calls := 0
		err := WaitUntil(context.Background(), WaitOptions{}, func() (bool, error) {
			calls++
			return false, nil
		})

		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := WaitUntil(ctx, WaitOptions{Timeout: time.Second, Interval: 10 * time.Millisecond}, func() (bool, error) {
			return false, nil
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}
