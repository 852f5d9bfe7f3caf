package hooks

import (
	"strings"
	"time"
)

// EngineVersion is stamped into result metadata. Overridden at build time
// via -ldflags in release builds.
var EngineVersion = "dev"

// Result is the normalized outcome of one hook execution.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// Block requests a veto of the pending operation. Meaningful only on
	// PreToolUse; the registry ignores it everywhere else.
	Block bool `json:"block,omitempty"`

	Meta ResultMeta `json:"meta"`
}

// ResultMeta records how the result was produced.
type ResultMeta struct {
	ExecutionID string        `json:"execution_id,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
	Engine      string        `json:"engine,omitempty"`
	TimedOut    bool          `json:"timed_out,omitempty"`
	Skipped     bool          `json:"skipped,omitempty"`
}

// Blocking reports whether this result stops a chain running under event.
func (r Result) Blocking(event HookEvent) bool {
	return event.CanBlock() && !r.Success && r.Block
}

// Ok returns a success result with an optional message.
func Ok(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail returns a non-blocking failure.
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// Blocked returns a blocking failure. Only PreToolUse chains act on it.
func Blocked(message string) Result {
	return Result{Success: false, Block: true, Message: message}
}

// Skip returns the success result a false condition short-circuits to.
// Skipping is never a failure.
func Skip(reason string) Result {
	r := Ok("skipped: " + reason)
	r.Meta.Skipped = true
	return r
}

// Combine folds a result chain into one verdict: a blocking failure wins
// outright, then the first non-blocking failure, then a success aggregate
// with joined messages and the executed count.
func Combine(event HookEvent, results []Result) Result {
	for _, r := range results {
		if r.Blocking(event) {
			return r
		}
	}
	for _, r := range results {
		if !r.Success {
			return r
		}
	}

	var msgs []string
	for _, r := range results {
		if r.Message != "" && !r.Meta.Skipped {
			msgs = append(msgs, r.Message)
		}
	}
	combined := Ok(strings.Join(msgs, "; "))
	if combined.Data == nil {
		combined.Data = map[string]any{}
	}
	combined.Data["executed"] = len(results)
	return combined
}
