// Package plugin layers named, versioned behavior units over the hook
// registry. The registry deals in anonymous entries; this package owns
// per-name uniqueness, declarative configuration, filesystem discovery
// and hot reload.
package plugin

import (
	"context"
	"regexp"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// Plugin is the contract every behavior unit implements. This is the one
// place plugin shape is checked; nothing else probes for methods ad hoc.
type Plugin interface {
	// Name is the unique registration key. Lowercase, hyphenated.
	Name() string

	// Version is the plugin's semver string.
	Version() string

	// Events lists the hook events this plugin observes.
	Events() []hooks.HookEvent

	// Tools lists the tools this plugin is scoped to. Empty means
	// universal: the plugin runs for every tool under its events.
	Tools() []hooks.ToolName

	// Priority orders execution; higher runs first.
	Priority() int

	// Handle processes one event occurrence.
	Handle(ctx context.Context, ec *hooks.ExecutionContext) (hooks.Result, error)
}

// Initializer is implemented by plugins that need setup before their first
// event. Called by Manager.InitAll, never per event.
type Initializer interface {
	Init(ctx context.Context, config map[string]any) error
}

// Shutdowner is implemented by plugins that hold resources. Called by
// Manager.ShutdownAll.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// HealthChecker is implemented by plugins that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Validate checks a plugin against the contract: name shape, semver
// version, at least one valid event.
func Validate(p Plugin) error {
	if p == nil {
		return hooks.NewError(hooks.KindValidation, "nil plugin", nil)
	}
	if !namePattern.MatchString(p.Name()) {
		return hooks.NewError(hooks.KindValidation,
			"plugin name "+p.Name()+" must be lowercase alphanumeric with hyphens", nil)
	}
	if !semverPattern.MatchString(p.Version()) {
		return hooks.NewError(hooks.KindValidation,
			"plugin "+p.Name()+" version "+p.Version()+" is not valid semver", nil)
	}
	events := p.Events()
	if len(events) == 0 {
		return hooks.NewError(hooks.KindValidation,
			"plugin "+p.Name()+" declares no events", nil)
	}
	for _, ev := range events {
		if !ev.IsValid() {
			return hooks.NewError(hooks.KindValidation,
				"plugin "+p.Name()+" declares unknown event "+string(ev), nil)
		}
	}
	if len(p.Tools()) > 0 {
		for _, ev := range events {
			if !ev.RequiresMatcher() {
				return hooks.NewError(hooks.KindValidation,
					"plugin "+p.Name()+" scopes tools but event "+string(ev)+" has none", nil)
			}
		}
	}
	return nil
}

// Func adapts plain values and a handler function into a Plugin. Built-in
// plugins and tests use it to avoid boilerplate types.
type Func struct {
	PluginName    string
	PluginVersion string
	OnEvents      []hooks.HookEvent
	OnTools       []hooks.ToolName
	RunPriority   int
	Handler       hooks.Handler

	InitFunc     func(ctx context.Context, config map[string]any) error
	ShutdownFunc func(ctx context.Context) error
	HealthFunc   func(ctx context.Context) error
}

func (f *Func) Name() string              { return f.PluginName }
func (f *Func) Version() string           { return f.PluginVersion }
func (f *Func) Events() []hooks.HookEvent { return f.OnEvents }
func (f *Func) Tools() []hooks.ToolName   { return f.OnTools }
func (f *Func) Priority() int             { return f.RunPriority }

func (f *Func) Handle(ctx context.Context, ec *hooks.ExecutionContext) (hooks.Result, error) {
	return f.Handler(ctx, ec)
}

func (f *Func) Init(ctx context.Context, config map[string]any) error {
	if f.InitFunc == nil {
		return nil
	}
	return f.InitFunc(ctx, config)
}

func (f *Func) Shutdown(ctx context.Context) error {
	if f.ShutdownFunc == nil {
		return nil
	}
	return f.ShutdownFunc(ctx)
}

func (f *Func) HealthCheck(ctx context.Context) error {
	if f.HealthFunc == nil {
		return nil
	}
	return f.HealthFunc(ctx)
}
