package hooks

import (
	"context"
	"time"
)

// Builder assembles a HookEntry. The zero value is unusable; start from
// NewHook. Build wraps the base handler, inside out, as
// condition check -> middleware chain -> handler, composing once so
// execution never re-derives the chain.
type Builder struct {
	entry      HookEntry
	middleware []Middleware
	condition  Condition
	hasEvent   bool
}

// NewHook starts a builder for the given event.
func NewHook(event HookEvent) *Builder {
	return &Builder{
		entry:    HookEntry{Event: event, Enabled: true},
		hasEvent: event != "",
	}
}

// Named sets the informational entry name.
func (b *Builder) Named(name string) *Builder {
	b.entry.Name = name
	return b
}

// ForTool scopes the entry to a single tool.
func (b *Builder) ForTool(tool ToolName) *Builder {
	b.entry.Tool = tool
	return b
}

// Handle sets the base handler.
func (b *Builder) Handle(h Handler) *Builder {
	b.entry.Handler = h
	return b
}

// WithPriority sets the execution priority; higher runs first. Default 0.
func (b *Builder) WithPriority(p int) *Builder {
	b.entry.Priority = p
	return b
}

// WithTimeout overrides the event-class default timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.entry.Timeout = d
	return b
}

// Disabled registers the entry switched off; the registry skips it until
// re-enabled.
func (b *Builder) Disabled() *Builder {
	b.entry.Enabled = false
	return b
}

// Use attaches middleware. The first attached ends up outermost.
func (b *Builder) Use(mw ...Middleware) *Builder {
	b.middleware = append(b.middleware, mw...)
	return b
}

// When attaches a condition predicate. A false condition skips the hook
// with a success result rather than failing it.
func (b *Builder) When(cond Condition) *Builder {
	b.condition = cond
	return b
}

// Build validates the accumulated configuration and returns the finished
// entry with its fully composed handler.
func (b *Builder) Build() (*HookEntry, error) {
	if !b.hasEvent || !b.entry.Event.IsValid() {
		return nil, validationErrorf("hook builder: missing or invalid event")
	}
	if b.entry.Handler == nil {
		return nil, validationErrorf("hook builder: missing handler")
	}
	if b.entry.Tool != "" && !b.entry.Event.RequiresMatcher() {
		return nil, validationErrorf("hook builder: event %s does not support tool scoping", b.entry.Event)
	}

	handler := Compose(b.entry.Handler, b.middleware...)
	if cond := b.condition; cond != nil {
		name := b.entry.Name
		handler = wrapCondition(handler, cond, name)
	}

	entry := b.entry
	entry.Handler = handler
	return &entry, nil
}

// wrapCondition gates the composed handler. The condition runs outside the
// middleware chain so a skipped hook pays no middleware cost.
func wrapCondition(next Handler, cond Condition, name string) Handler {
	return func(ctx context.Context, ec *ExecutionContext) (Result, error) {
		ok, err := cond(ctx, ec)
		if err != nil {
			return Result{}, NewError(KindExecution, "condition check failed", err)
		}
		if !ok {
			reason := "condition not met"
			if name != "" {
				reason = name + " condition not met"
			}
			return Skip(reason), nil
		}
		return next(ctx, ec)
	}
}
