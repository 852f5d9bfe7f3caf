package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// Manifest is the on-disk plugin form discovery loads: a YAML or JSON
// file declaring identity, scope and a command handler. The command
// receives the host event JSON on stdin and answers with the exit-code
// protocol (0 ok, 2 block) plus optional JSON on stdout.
type Manifest struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Events   []string `yaml:"events" json:"events"`
	Tools    []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	Priority int      `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Command is the handler. Timeout is in seconds, zero meaning the
	// event-class default.
	Command string `yaml:"command" json:"command"`
	Timeout int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Conditions []ConditionSpec `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	path string
}

// LoadManifest reads and validates one manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hooks.NewError(hooks.KindDiscovery, "reading "+path, err)
	}

	var m Manifest
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, hooks.NewError(hooks.KindDiscovery, "parsing "+path, err)
	}

	if m.Name == "" {
		m.Name = PluginNameFromPath(path)
	}
	m.path = path

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest shape before it becomes a plugin.
func (m *Manifest) Validate() error {
	switch {
	case !namePattern.MatchString(m.Name):
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("manifest %s: invalid plugin name %q", m.path, m.Name), nil)
	case m.Version == "":
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("manifest %s: version is required", m.path), nil)
	case !semverPattern.MatchString(m.Version):
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("manifest %s: version %q is not valid semver", m.path, m.Version), nil)
	case len(m.Events) == 0:
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("manifest %s: at least one event is required", m.path), nil)
	case strings.TrimSpace(m.Command) == "":
		return hooks.NewError(hooks.KindValidation,
			fmt.Sprintf("manifest %s: command is required", m.path), nil)
	}
	for _, ev := range m.Events {
		if !hooks.HookEvent(ev).IsValid() {
			return hooks.NewError(hooks.KindValidation,
				fmt.Sprintf("manifest %s: unknown event %q", m.path, ev), nil)
		}
	}
	return nil
}

// Path returns where the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// ToPlugin materializes the manifest as a command-backed Plugin.
func (m *Manifest) ToPlugin() Plugin {
	events := make([]hooks.HookEvent, len(m.Events))
	for i, ev := range m.Events {
		events[i] = hooks.HookEvent(ev)
	}
	tools := make([]hooks.ToolName, len(m.Tools))
	for i, t := range m.Tools {
		tools[i] = hooks.ToolName(t)
	}

	return &manifestPlugin{manifest: m, events: events, tools: tools}
}

type manifestPlugin struct {
	manifest *Manifest
	events   []hooks.HookEvent
	tools    []hooks.ToolName
}

func (p *manifestPlugin) Name() string              { return p.manifest.Name }
func (p *manifestPlugin) Version() string           { return p.manifest.Version }
func (p *manifestPlugin) Events() []hooks.HookEvent { return p.events }
func (p *manifestPlugin) Tools() []hooks.ToolName   { return p.tools }
func (p *manifestPlugin) Priority() int             { return p.manifest.Priority }

func (p *manifestPlugin) Handle(ctx context.Context, ec *hooks.ExecutionContext) (hooks.Result, error) {
	handler := hooks.CommandHandler(p.manifest.Command)
	if p.manifest.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.manifest.Timeout)*time.Second)
		defer cancel()
	}
	return handler(ctx, ec)
}

// ManifestConditions compiles the manifest's declarative conditions into
// plugin Config form for registration.
func (m *Manifest) ManifestConfig() Config {
	return Config{Name: m.Name, When: m.Conditions}
}

// PluginNameFromPath derives a plugin name from a manifest filename:
// "plugins/audit-log.hook.yml" -> "audit-log". Hot reload uses it to
// retire plugins whose file is already gone.
func PluginNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".hook")
	return strings.ToLower(base)
}
