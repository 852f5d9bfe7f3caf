// Package builtin ships the plugins compiled into the engine: a safety
// gate for shell commands, an audit logger, and a pre-write backup. Each
// implements only the plugin contract; the engine treats them exactly
// like discovered plugins.
package builtin

import (
	"fmt"
	"sort"

	"github.com/osi4iot/hookmux/internal/plugin"
)

// Factory creates a builtin plugin from its configured options.
type Factory func(options map[string]any) (plugin.Plugin, error)

// Registry holds the available builtin plugin factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with every builtin registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["safety"] = NewSafetyPlugin
	r.factories["audit"] = NewAuditPlugin
	r.factories["backup"] = NewBackupPlugin
	return r
}

// Create instantiates a builtin plugin by name.
func (r *Registry) Create(name string, options map[string]any) (plugin.Plugin, error) {
	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("unknown builtin plugin: %s", name)
	}
	return factory(options)
}

// Names lists the available builtin plugins, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAll installs every builtin into the manager, applying matching
// overrides from configuration.
func (r *Registry) RegisterAll(m *plugin.Manager, overrides map[string]plugin.Config) error {
	for _, name := range r.Names() {
		cfg := overrides[name]
		cfg.Name = name

		p, err := r.Create(name, cfg.Settings)
		if err != nil {
			return err
		}
		if err := m.Register(p, cfg); err != nil {
			return err
		}
	}
	return nil
}
