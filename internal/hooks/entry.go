package hooks

import (
	"context"
	"time"
)

// Handler is the behavior a hook contributes. It may block on its own I/O;
// the execution wrapper bounds how long the chain waits for it.
type Handler func(ctx context.Context, ec *ExecutionContext) (Result, error)

// Condition gates a hook at execution time. Returning false skips the hook
// with a success result; returning an error fails it.
type Condition func(ctx context.Context, ec *ExecutionContext) (bool, error)

// Middleware wraps a handler with cross-cutting behavior. It receives the
// next handler in the chain and must call it to proceed.
type Middleware func(next Handler) Handler

// HookEntry is one registered hook, owned by the Registry after Register.
type HookEntry struct {
	// Name is informational; uniqueness is enforced by the plugin manager,
	// not here.
	Name string

	Event HookEvent

	// Tool scopes the entry to one tool. Empty means universal: the entry
	// runs for every tool under its event.
	Tool ToolName

	Handler Handler

	// Priority orders execution; higher runs first, ties keep registration
	// order.
	Priority int

	Enabled bool

	// Timeout overrides the event-class default when positive.
	Timeout time.Duration
}

func (e *HookEntry) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return e.Event.DefaultTimeout()
}

// registryKey buckets entries: the bare event for universal hooks, or
// "event:tool" for scoped ones.
func registryKey(event HookEvent, tool ToolName) string {
	if tool == "" {
		return string(event)
	}
	return string(event) + ":" + string(tool)
}
