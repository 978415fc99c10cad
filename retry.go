package nipc

import (
	"context"
	"errors"
	"time"
)

// RetryOptions configures Retry. The zero value means up to 3 retries,
// starting at a 1 second delay, doubling per attempt.
type RetryOptions struct {
	MaxRetries int
	Delay      time.Duration
	Backoff    float64
}

// Retry runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or the context ends. The delay between attempts
// grows exponentially. The last error seen is returned.
func Retry(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2
	}

	delay := opts.Delay
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			}
			delay = time.Duration(float64(delay) * opts.Backoff)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Retryable reports whether an error may succeed on retry. Timeouts and
// transport failures are retryable; remote faults, missing methods and
// invalid requests are not.
func Retryable(err error) bool {
	var timeoutErr TimeoutError
	var transportErr TransportError
	return errors.As(err, &timeoutErr) || errors.As(err, &transportErr)
}
