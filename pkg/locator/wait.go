package locator

import (
	"context"
	"errors"
	"time"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Poll calls check until it reports done, returns a non-retryable error, ctx
// ends, or timeout elapses. what names the awaited condition in the timeout
// error.
func Poll(ctx context.Context, timeout, interval time.Duration, what string, check func(ctx context.Context) (bool, error)) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		done, err := check(ctx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && !Retryable(err):
			return err
		case err != nil:
			lastErr = err
		}

		select {
		case <-ctx.Done():
			timeoutErr := core.ErrWaitTimeout.WithMessagef("waiting for %s: timeout after %s", what, timeout)
			if lastErr != nil {
				return timeoutErr.WithCause(lastErr)
			}
			return timeoutErr
		case <-ticker.C:
		}
	}
}

// Retryable reports whether a failed resolution may succeed on a later poll.
func Retryable(err error) bool {
	return errors.Is(err, core.ErrStaleElement) ||
		errors.Is(err, core.ErrElementNotFound) ||
		errors.Is(err, core.ErrElementNotVisible) ||
		errors.Is(err, context.DeadlineExceeded)
}
