package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osi4iot/hookmux/internal/hooks"
)

func testContext(t *testing.T, event hooks.HookEvent, tool hooks.ToolName) *hooks.ExecutionContext {
	t.Helper()

	in := &hooks.RawInput{
		SessionID:     "test-session",
		CWD:           t.TempDir(),
		HookEventName: event,
	}
	if event.RequiresMatcher() {
		in.ToolName = string(tool)
		in.ToolInput = []byte(`{"command":"echo hi"}`)
	}

	ec, err := hooks.NewContext(in)
	require.NoError(t, err)
	return ec
}

func testPlugin(name string) *Func {
	return &Func{
		PluginName:    name,
		PluginVersion: "1.0.0",
		OnEvents:      []hooks.HookEvent{hooks.PreToolUse},
		OnTools:       []hooks.ToolName{hooks.ToolBash},
		RunPriority:   10,
		Handler: func(context.Context, *hooks.ExecutionContext) (hooks.Result, error) {
			return hooks.Ok("handled by " + name), nil
		},
	}
}

func TestManagerRegister(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	require.NoError(t, m.Register(testPlugin("greeter"), Config{}))

	entries := registry.Hooks(hooks.PreToolUse, hooks.ToolBash)
	require.Len(t, entries, 1)
	assert.Equal(t, "greeter", entries[0].Name)
	assert.Equal(t, 10, entries[0].Priority)

	got, ok := m.Get("greeter")
	require.True(t, ok)
	assert.Equal(t, "greeter", got.Name())
}

func TestManagerRejectsDuplicateName(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	require.NoError(t, m.Register(testPlugin("dup"), Config{}))

	err := m.Register(testPlugin("dup"), Config{})
	require.Error(t, err)
	assert.Equal(t, hooks.KindValidation, hooks.KindOf(err))
}

func TestManagerRejectsInvalidPlugin(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	tests := []struct {
		name   string
		mutate func(*Func)
	}{
		{"bad name", func(p *Func) { p.PluginName = "Bad Name" }},
		{"bad version", func(p *Func) { p.PluginVersion = "one" }},
		{"no events", func(p *Func) { p.OnEvents = nil }},
		{"unknown event", func(p *Func) { p.OnEvents = []hooks.HookEvent{"BogusEvent"} }},
		{"tools on unmatched event", func(p *Func) {
			p.OnEvents = []hooks.HookEvent{hooks.Stop}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlugin("candidate")
			tt.mutate(p)
			err := m.Register(p, Config{})
			require.Error(t, err)
			assert.Equal(t, hooks.KindValidation, hooks.KindOf(err))
		})
	}
}

func TestManagerExpandsEventToolMatrix(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	p := testPlugin("matrix")
	p.OnEvents = []hooks.HookEvent{hooks.PreToolUse, hooks.PostToolUse}
	p.OnTools = []hooks.ToolName{hooks.ToolBash, hooks.ToolWrite}
	require.NoError(t, m.Register(p, Config{}))

	// One entry per (event, tool) pair.
	for _, event := range p.OnEvents {
		for _, tool := range p.OnTools {
			assert.Len(t, registry.Hooks(event, tool), 1, "%s/%s", event, tool)
		}
	}
	assert.Equal(t, 4, registry.Len())
}

func TestManagerConfigOverrides(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	disabled := false
	priority := 99
	require.NoError(t, m.Register(testPlugin("tuned"), Config{
		Enabled:  &disabled,
		Priority: &priority,
		Tools:    []string{"Write"},
	}))

	// Config tools replace the plugin's own declaration.
	assert.Empty(t, registry.Hooks(hooks.PreToolUse, hooks.ToolBash))

	entries := registry.Hooks(hooks.PreToolUse, hooks.ToolWrite)
	require.Len(t, entries, 1)
	assert.Equal(t, 99, entries[0].Priority)
	assert.False(t, entries[0].Enabled)
}

func TestManagerUpdateConfig(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	require.NoError(t, m.Register(testPlugin("mutable"), Config{}))
	require.Len(t, registry.Hooks(hooks.PreToolUse, hooks.ToolBash), 1)

	require.NoError(t, m.UpdateConfig("mutable", Config{Tools: []string{"Edit"}}))

	assert.Empty(t, registry.Hooks(hooks.PreToolUse, hooks.ToolBash))
	assert.Len(t, registry.Hooks(hooks.PreToolUse, hooks.ToolEdit), 1)
}

func TestManagerUpdateConfigBadUpdateIsNoOp(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	require.NoError(t, m.Register(testPlugin("stable"), Config{}))

	err := m.UpdateConfig("stable", Config{
		When: []ConditionSpec{{Field: "tool_input.command", Pattern: "([unclosed"}},
	})
	require.Error(t, err)

	// Previous wiring survives a failed update.
	assert.Len(t, registry.Hooks(hooks.PreToolUse, hooks.ToolBash), 1)
}

func TestManagerUpdateConfigUnknownName(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	err := m.UpdateConfig("ghost", Config{})
	require.Error(t, err)
	assert.Equal(t, hooks.KindValidation, hooks.KindOf(err))
}

func TestManagerUnregister(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	require.NoError(t, m.Register(testPlugin("ephemeral"), Config{}))
	assert.True(t, m.Unregister("ephemeral"))
	assert.False(t, m.Unregister("ephemeral"))
	assert.Zero(t, registry.Len())
}

func TestManagerNamesSorted(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Register(testPlugin(name), Config{}))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, m.Names())
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	var inits, shutdowns []string
	for _, name := range []string{"b-plugin", "a-plugin"} {
		p := testPlugin(name)
		p.InitFunc = func(_ context.Context, config map[string]any) error {
			inits = append(inits, p.PluginName)
			if p.PluginName == "a-plugin" {
				assert.Equal(t, "verbose", config["mode"])
			}
			return nil
		}
		p.ShutdownFunc = func(context.Context) error {
			shutdowns = append(shutdowns, p.PluginName)
			return nil
		}
		cfg := Config{}
		if name == "a-plugin" {
			cfg.Settings = map[string]any{"mode": "verbose"}
		}
		require.NoError(t, m.Register(p, cfg))
	}

	require.NoError(t, m.InitAll(context.Background()))
	require.NoError(t, m.ShutdownAll(context.Background()))

	// Lifecycle runs in name order.
	assert.Equal(t, []string{"a-plugin", "b-plugin"}, inits)
	assert.Equal(t, []string{"a-plugin", "b-plugin"}, shutdowns)
}

func TestManagerShutdownAllContinuesPastFailure(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	var reached bool
	bad := testPlugin("a-bad")
	bad.ShutdownFunc = func(context.Context) error { return errors.New("flush failed") }
	good := testPlugin("b-good")
	good.ShutdownFunc = func(context.Context) error { reached = true; return nil }

	require.NoError(t, m.Register(bad, Config{}))
	require.NoError(t, m.Register(good, Config{}))

	err := m.ShutdownAll(context.Background())
	require.Error(t, err)
	assert.True(t, reached, "later plugins still shut down")
}

func TestManagerHealthCheck(t *testing.T) {
	m := NewManager(hooks.NewRegistry(), nil)

	sick := testPlugin("sick")
	sick.HealthFunc = func(context.Context) error { return errors.New("backend down") }
	well := testPlugin("well")

	require.NoError(t, m.Register(sick, Config{}))
	require.NoError(t, m.Register(well, Config{}))

	failures := m.HealthCheck(context.Background())
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures["sick"], "backend down")
}

func TestManagerConditionGatesExecution(t *testing.T) {
	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	var ran bool
	p := testPlugin("guarded")
	p.Handler = func(context.Context, *hooks.ExecutionContext) (hooks.Result, error) {
		ran = true
		return hooks.Ok("ran"), nil
	}
	require.NoError(t, m.Register(p, Config{
		When: []ConditionSpec{{EnvVar: "HOOKMUX_GUARDED_TEST"}},
	}))

	ec := testContext(t, hooks.PreToolUse, hooks.ToolBash)

	results, err := registry.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Meta.Skipped)
	assert.False(t, ran)

	// The environment snapshot is per context, so rebuild after setting.
	t.Setenv("HOOKMUX_GUARDED_TEST", "1")
	ec = testContext(t, hooks.PreToolUse, hooks.ToolBash)
	results, err = registry.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Meta.Skipped)
	assert.True(t, ran)
}
