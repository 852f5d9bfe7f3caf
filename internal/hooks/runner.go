package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunOptions control one wrapped handler invocation.
type RunOptions struct {
	// Timeout bounds how long the caller waits. Zero means the event-class
	// default for the context's event.
	Timeout time.Duration

	// ThrowOnError re-raises normalized failures as typed errors instead
	// of returning them as Results. Reserved for the host adapter; the
	// registry's internal loop never sets it.
	ThrowOnError bool
}

type handlerOutcome struct {
	result Result
	err    error
}

// Run executes one handler under a timeout and always produces a
// normalized Result. Handler errors and panics become failure Results; a
// timeout becomes a distinguished failure. The handler goroutine is not
// cancelled on timeout — the caller just stops waiting, and a late result
// is discarded.
func Run(ctx context.Context, handler Handler, ec *ExecutionContext, opts RunOptions) (Result, error) {
	if handler == nil {
		return Result{}, validationErrorf("nil handler")
	}
	if err := ec.Validate(); err != nil {
		// Context shape problems are the integrator's fault, not the
		// handler's; they surface as errors even in non-throwing mode.
		return Result{}, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = ec.Event.DefaultTimeout()
	}

	start := time.Now()
	execID := uuid.NewString()

	outcome := make(chan handlerOutcome, 1)
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome <- handlerOutcome{err: NewError(KindExecution,
					fmt.Sprintf("handler panic: %v", rec), nil)}
			}
		}()
		r, err := handler(hctx, ec)
		outcome <- handlerOutcome{result: r, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result Result
	var runErr error

	select {
	case out := <-outcome:
		if out.err != nil {
			runErr = out.err
			result = Result{
				Success: false,
				Block:   ec.Event == PreToolUse,
				Message: out.err.Error(),
			}
		} else {
			result = out.result
		}
	case <-timer.C:
		runErr = NewError(KindTimeout,
			fmt.Sprintf("handler timed out after %s", timeout), nil)
		result = Result{
			Success: false,
			Block:   ec.Event == PreToolUse,
			Message: runErr.Error(),
		}
		result.Meta.TimedOut = true
	}

	result.Meta.ExecutionID = execID
	result.Meta.Duration = time.Since(start)
	result.Meta.Timestamp = start
	result.Meta.Engine = EngineVersion

	if runErr != nil && opts.ThrowOnError {
		if kindErr, ok := runErr.(*Error); ok {
			return result, kindErr
		}
		return result, NewError(KindExecution, "handler failed", runErr)
	}
	return result, nil
}
