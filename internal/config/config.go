// Package config loads and merges the engine's declarative configuration:
// built-in defaults, a config file (plain or executable form), and the
// active environment's override block, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

// EnvName selects the active environments override block.
const EnvName = "HOOKMUX_ENV"

// Settings are the engine-wide knobs.
type Settings struct {
	DefaultTimeout    time.Duration `yaml:"defaultTimeout" json:"defaultTimeout"`
	ContinueOnFailure bool          `yaml:"continueOnFailure" json:"continueOnFailure"`
	CollectMetrics    bool          `yaml:"collectMetrics" json:"collectMetrics"`
	EnableHotReload   bool          `yaml:"enableHotReload" json:"enableHotReload"`
	LogLevel          string        `yaml:"logLevel" json:"logLevel"`
	MaxConcurrency    int           `yaml:"maxConcurrency" json:"maxConcurrency"`
}

// Config is the full configuration shape.
type Config struct {
	Plugins      []plugin.Config           `yaml:"plugins" json:"plugins"`
	Rules        map[string]map[string]any `yaml:"rules" json:"rules"`
	Settings     Settings                  `yaml:"settings" json:"settings"`
	Loader       plugin.LoaderConfig       `yaml:"loader" json:"loader"`
	Environments map[string]map[string]any `yaml:"environments" json:"environments"`
}

// Provenance records where the active configuration came from.
type Provenance struct {
	Path        string        // resolved config file, "" when defaults only
	Environment string        // active environments block, "" when none
	Elapsed     time.Duration // load + merge time
}

// Default returns the built-in configuration every load starts from.
func Default() *Config {
	return &Config{
		Rules: map[string]map[string]any{},
		Settings: Settings{
			DefaultTimeout:    30 * time.Second,
			ContinueOnFailure: true,
			CollectMetrics:    true,
			EnableHotReload:   false,
			LogLevel:          "warn",
			MaxConcurrency:    4,
		},
		Loader:       plugin.DefaultLoaderConfig(),
		Environments: map[string]map[string]any{},
	}
}

// Validate checks the merged configuration shape. A failure here is a
// hard configuration error; the engine refuses to start on a config it
// only half understands.
func (c *Config) Validate() error {
	if c.Settings.DefaultTimeout < 0 {
		return hooks.NewError(hooks.KindConfiguration,
			"settings.defaultTimeout must not be negative", nil)
	}
	if c.Settings.MaxConcurrency < 0 {
		return hooks.NewError(hooks.KindConfiguration,
			"settings.maxConcurrency must not be negative", nil)
	}
	switch c.Settings.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return hooks.NewError(hooks.KindConfiguration,
			fmt.Sprintf("settings.logLevel %q is not one of debug, info, warn, error", c.Settings.LogLevel), nil)
	}
	if c.Loader.MaxDepth < 0 {
		return hooks.NewError(hooks.KindConfiguration,
			"loader.maxDepth must not be negative", nil)
	}

	seen := make(map[string]bool, len(c.Plugins))
	for i, pc := range c.Plugins {
		if pc.Name == "" {
			return hooks.NewError(hooks.KindConfiguration,
				fmt.Sprintf("plugins[%d]: name is required", i), nil)
		}
		if seen[pc.Name] {
			return hooks.NewError(hooks.KindConfiguration,
				fmt.Sprintf("plugins[%d]: duplicate plugin name %q", i, pc.Name), nil)
		}
		seen[pc.Name] = true
		for _, ev := range pc.Events {
			if !hooks.HookEvent(ev).IsValid() {
				return hooks.NewError(hooks.KindConfiguration,
					fmt.Sprintf("plugin %q: unknown event %q", pc.Name, ev), nil)
			}
		}
	}
	return nil
}

// PluginOverrides indexes the per-plugin config blocks by name, folding
// any matching rules entry into the plugin's settings payload.
func (c *Config) PluginOverrides() map[string]plugin.Config {
	overrides := make(map[string]plugin.Config, len(c.Plugins))
	for _, pc := range c.Plugins {
		if rule, ok := c.Rules[pc.Name]; ok && pc.Settings == nil {
			pc.Settings = rule
		}
		overrides[pc.Name] = pc
	}
	for name, rule := range c.Rules {
		if _, ok := overrides[name]; !ok {
			overrides[name] = plugin.Config{Name: name, Settings: rule}
		}
	}
	return overrides
}
