package hooks

import (
	"context"
	"fmt"
	"time"
)

// Compose wraps handler with the given middleware, first-attached
// outermost. The chain is folded right-to-left once; callers hold the
// resulting single closure and never pay composition cost per invocation.
func Compose(handler Handler, middleware ...Middleware) Handler {
	composed := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		composed = middleware[i](composed)
	}
	return composed
}

// TimingMiddleware stamps the wall time spent below it into the result
// metadata. The execution wrapper records its own end-to-end duration;
// this one measures just the inner handler, which matters when outer
// middleware do real work.
func TimingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ec *ExecutionContext) (Result, error) {
			start := time.Now()
			result, err := next(ctx, ec)
			result.Meta.Duration = time.Since(start)
			if result.Meta.Timestamp.IsZero() {
				result.Meta.Timestamp = start
			}
			return result, err
		}
	}
}

// RecoveryMiddleware converts panics and handler errors into failure
// Results instead of letting them travel up the chain. The failure blocks
// iff the event is PreToolUse.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ec *ExecutionContext) (result Result, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					result = Result{
						Success: false,
						Block:   ec.Event == PreToolUse,
						Message: fmt.Sprintf("handler panic: %v", rec),
					}
					err = nil
				}
			}()

			result, err = next(ctx, ec)
			if err != nil {
				result = Result{
					Success: false,
					Block:   ec.Event == PreToolUse,
					Message: err.Error(),
				}
				err = nil
			}
			return result, err
		}
	}
}

// ValidationMiddleware short-circuits to a fixed-message failure when the
// predicate rejects the context. The handler below it never runs.
func ValidationMiddleware(valid func(ec *ExecutionContext) bool, message string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ec *ExecutionContext) (Result, error) {
			if !valid(ec) {
				return Fail(message), nil
			}
			return next(ctx, ec)
		}
	}
}
