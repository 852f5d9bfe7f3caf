package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// Config is the per-plugin configuration block. Zero-value fields leave
// the plugin's own declarations in effect.
type Config struct {
	Name     string          `yaml:"name" json:"name"`
	Enabled  *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Priority *int            `yaml:"priority,omitempty" json:"priority,omitempty"`
	Events   []string        `yaml:"events,omitempty" json:"events,omitempty"`
	Tools    []string        `yaml:"tools,omitempty" json:"tools,omitempty"`
	Settings map[string]any  `yaml:"config,omitempty" json:"config,omitempty" mapstructure:"config"`
	When     []ConditionSpec `yaml:"conditions,omitempty" json:"conditions,omitempty" mapstructure:"conditions"`
}

type registered struct {
	plugin  Plugin
	config  Config
	entries []*hooks.HookEntry
}

// Manager is the by-name plugin registry. It enforces per-name uniqueness
// and contract validation at registration, expands each plugin into hook
// entries on the underlying registry, and drives lifecycle callbacks.
type Manager struct {
	mu       sync.Mutex
	registry *hooks.Registry
	plugins  map[string]*registered
	logger   *slog.Logger

	// defaultTimeout, when positive, applies to entries whose plugin does
	// not carry its own budget. Zero defers to the event-class defaults.
	defaultTimeout time.Duration
}

// NewManager creates a manager over the given hook registry.
func NewManager(registry *hooks.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		plugins:  make(map[string]*registered),
		logger:   logger,
	}
}

// SetDefaultTimeout sets the execution budget applied to plugins without
// their own. Affects registrations after the call.
func (m *Manager) SetDefaultTimeout(d time.Duration) {
	m.mu.Lock()
	m.defaultTimeout = d
	m.mu.Unlock()
}

// Register validates the plugin, applies its configuration overrides, and
// installs one hook entry per (event, tool) expansion. Duplicate names and
// contract violations fail fast.
func (m *Manager) Register(p Plugin, cfg Config) error {
	if err := Validate(p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.plugins[name]; exists {
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("plugin %q already registered", name), nil)
	}

	entries, err := m.expand(p, cfg)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := m.registry.Register(entry); err != nil {
			// Roll back anything installed before the failure.
			m.registry.UnregisterNamed(name)
			return err
		}
	}

	m.plugins[name] = &registered{plugin: p, config: cfg, entries: entries}
	m.logger.Debug("plugin registered",
		"plugin", name, "version", p.Version(), "entries", len(entries))
	return nil
}

// expand resolves effective events, tools, priority and conditions, then
// builds one composed entry per (event, tool) pair. Callers hold m.mu.
func (m *Manager) expand(p Plugin, cfg Config) ([]*hooks.HookEntry, error) {
	events := p.Events()
	if len(cfg.Events) > 0 {
		events = make([]hooks.HookEvent, 0, len(cfg.Events))
		for _, ev := range cfg.Events {
			events = append(events, hooks.HookEvent(ev))
		}
	}

	tools := p.Tools()
	if len(cfg.Tools) > 0 {
		tools = make([]hooks.ToolName, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			tools = append(tools, hooks.ToolName(t))
		}
	}

	priority := p.Priority()
	if cfg.Priority != nil {
		priority = *cfg.Priority
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}

	condition, err := CompileAll(cfg.When)
	if err != nil {
		return nil, err
	}

	var entries []*hooks.HookEntry
	for _, event := range events {
		scopes := []hooks.ToolName{""}
		if event.RequiresMatcher() && len(tools) > 0 {
			scopes = tools
		}
		for _, tool := range scopes {
			b := hooks.NewHook(event).
				Named(p.Name()).
				ForTool(tool).
				Handle(p.Handle).
				WithPriority(priority).
				Use(hooks.RecoveryMiddleware())
			if m.defaultTimeout > 0 {
				b.WithTimeout(m.defaultTimeout)
			}
			if condition != nil {
				b.When(condition)
			}
			if !enabled {
				b.Disabled()
			}
			entry, err := b.Build()
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// UpdateConfig re-wires an already-registered plugin with new
// configuration: its entries are replaced atomically under the manager
// lock. In-flight chains keep the entries they snapshotted.
func (m *Manager) UpdateConfig(name string, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.plugins[name]
	if !ok {
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("plugin %q not registered", name), nil)
	}

	entries, err := m.expand(reg.plugin, cfg)
	if err != nil {
		return err
	}

	m.registry.UnregisterNamed(name)
	for _, entry := range entries {
		if err := m.registry.Register(entry); err != nil {
			// Restore the previous wiring so a bad update is a no-op.
			m.registry.UnregisterNamed(name)
			for _, old := range reg.entries {
				_ = m.registry.Register(old)
			}
			return err
		}
	}

	reg.config = cfg
	reg.entries = entries
	return nil
}

// Unregister removes a plugin and all of its hook entries. Unknown names
// are a no-op returning false.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plugins[name]; !ok {
		return false
	}
	m.registry.UnregisterNamed(name)
	delete(m.plugins, name)
	m.logger.Debug("plugin unregistered", "plugin", name)
	return true
}

// Get returns the registered plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.plugins[name]
	if !ok {
		return nil, false
	}
	return reg.plugin, true
}

// Names returns registered plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitAll runs Init on every plugin that implements Initializer, passing
// its configured settings payload. The first failure aborts.
func (m *Manager) InitAll(ctx context.Context) error {
	for _, reg := range m.snapshot() {
		init, ok := reg.plugin.(Initializer)
		if !ok {
			continue
		}
		if err := init.Init(ctx, reg.config.Settings); err != nil {
			return hooks.NewError(hooks.KindExecution,
				fmt.Sprintf("initializing plugin %q", reg.plugin.Name()), err)
		}
	}
	return nil
}

// ShutdownAll runs Shutdown on every plugin that implements Shutdowner.
// All plugins are attempted; the first error is returned afterwards.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	var firstErr error
	for _, reg := range m.snapshot() {
		down, ok := reg.plugin.(Shutdowner)
		if !ok {
			continue
		}
		if err := down.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = hooks.NewError(hooks.KindExecution,
				fmt.Sprintf("shutting down plugin %q", reg.plugin.Name()), err)
		}
	}
	return firstErr
}

// HealthCheck runs every HealthChecker and returns failures by name.
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, reg := range m.snapshot() {
		hc, ok := reg.plugin.(HealthChecker)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil {
			failures[reg.plugin.Name()] = err
		}
	}
	return failures
}

func (m *Manager) snapshot() []*registered {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := make([]*registered, 0, len(m.plugins))
	for _, reg := range m.plugins {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].plugin.Name() < regs[j].plugin.Name()
	})
	return regs
}
