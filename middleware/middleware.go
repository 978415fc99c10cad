// Package middleware provides handler middleware for nipc nodes: logging,
// rate limiting and handler timeouts. Middleware applies per handler via
// nipc.WithMiddleware or by wrapping a handler before Register.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nivrem/nipc"
	"golang.org/x/time/rate"
)

// Chain combines several middlewares into one. The first middleware becomes
// the outermost wrapper.
func Chain(middlewares ...nipc.Middleware) nipc.Middleware {
	return func(next nipc.Handler) nipc.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging logs every handled call with its caller, duration and outcome.
func Logging(log nipc.Logger) nipc.Middleware {
	return func(next nipc.Handler) nipc.Handler {
		return func(ctx context.Context, args nipc.Args) (interface{}, error) {
			start := time.Now()
			result, err := next(ctx, args)

			method := nipc.MethodFromContext(ctx)
			caller := nipc.CallerFromContext(ctx)
			if err != nil {
				log.Errorf("handled: method => %v, from => %v, duration => %v, error => %v",
					method, caller, time.Since(start), err)
				return result, err
			}
			log.Infof("handled: method => %v, from => %v, duration => %v",
				method, caller, time.Since(start))
			return result, err
		}
	}
}

// RateLimit rejects calls beyond r calls per second with the given burst.
// The token bucket is shared by all handlers the middleware wraps.
func RateLimit(r float64, burst int) nipc.Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next nipc.Handler) nipc.Handler {
		return func(ctx context.Context, args nipc.Args) (interface{}, error) {
			if !limiter.Allow() {
				return nil, errors.New("rate limit exceeded")
			}
			return next(ctx, args)
		}
	}
}

// Timeout bounds the execution time of a handler. The wrapped handler keeps
// running in its goroutine after the deadline, but its result is discarded
// and the caller receives a timeout error.
func Timeout(timeout time.Duration) nipc.Middleware {
	return func(next nipc.Handler) nipc.Handler {
		return func(ctx context.Context, args nipc.Args) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result interface{}
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- outcome{err: fmt.Errorf("middleware.Timeout: panic recovered: %v", r)}
					}
				}()

				result, err := next(ctx, args)
				done <- outcome{result: result, err: err}
			}()

			select {
			case out := <-done:
				return out.result, out.err
			case <-ctx.Done():
				return nil, fmt.Errorf("handler timed out after %s", timeout)
			}
		}
	}
}
