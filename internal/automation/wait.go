package automation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned by WaitUntil once its retry budget is spent.
var ErrWaitTimeout = errors.New("wait timed out")

// WaitOptions bounds WaitUntil. A zero Interval polls every 250ms.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

const defaultWaitInterval = 250 * time.Millisecond

// WaitUntil polls cond every Interval until it reports true. The budget is
// Timeout/Interval attempts, at least one. Errors from cond count as false.
func WaitUntil(ctx context.Context, opts WaitOptions, cond func() (bool, error)) error {
	if opts.Interval <= 0 {
		opts.Interval = defaultWaitInterval
	}
	attempts := int(opts.Timeout / opts.Interval)
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		done, err := cond()
		if err == nil && done {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %s: %v", ErrWaitTimeout, opts.Timeout, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrWaitTimeout, opts.Timeout)
}
