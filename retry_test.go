package nipc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nivrem/nipc"
)

func TestRetrySucceedsAfterTimeouts(t *testing.T) {
	asrt := is.New(t)

	attempts := 0
	err := nipc.Retry(context.Background(), nipc.RetryOptions{Delay: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return nipc.TimeoutError{Target: "a", Method: "m", Timeout: time.Second}
		}
		return nil
	})
	asrt.NoErr(err)
	asrt.Equal(attempts, 3)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	asrt := is.New(t)

	attempts := 0
	wantErr := nipc.RemoteError{Target: "a", Method: "m", Description: "broken"}
	err := nipc.Retry(context.Background(), nipc.RetryOptions{Delay: time.Millisecond}, func(context.Context) error {
		attempts++
		return wantErr
	})
	asrt.Equal(err, wantErr)
	asrt.Equal(attempts, 1)
}

func TestRetryExhausted(t *testing.T) {
	asrt := is.New(t)

	attempts := 0
	err := nipc.Retry(context.Background(), nipc.RetryOptions{MaxRetries: 2, Delay: time.Millisecond}, func(context.Context) error {
		attempts++
		return nipc.TransportError{Op: "publish", Err: errors.New("down")}
	})
	var trErr nipc.TransportError
	asrt.True(errors.As(err, &trErr))
	asrt.Equal(attempts, 3)
}

func TestRetryStopsOnContextEnd(t *testing.T) {
	asrt := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := nipc.Retry(ctx, nipc.RetryOptions{Delay: time.Hour}, func(context.Context) error {
		attempts++
		cancel()
		return nipc.TimeoutError{Target: "a", Method: "m", Timeout: time.Second}
	})
	var toErr nipc.TimeoutError
	asrt.True(errors.As(err, &toErr))
	asrt.Equal(attempts, 1)
}

func TestRetryable(t *testing.T) {
	asrt := is.New(t)

	asrt.True(nipc.Retryable(nipc.TimeoutError{}))
	asrt.True(nipc.Retryable(nipc.TransportError{Err: errors.New("x")}))
	asrt.True(!nipc.Retryable(nipc.RemoteError{}))
	asrt.True(!nipc.Retryable(nipc.MethodNotFoundError{}))
	asrt.True(!nipc.Retryable(nipc.InvalidRequestError{}))
	asrt.True(!nipc.Retryable(errors.New("misc")))
	asrt.True(!nipc.Retryable(nil))
}
