package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	// Point the default search away from any real config.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvName, "")
	t.Chdir(t.TempDir())

	cfg, prov, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, prov.Path)
	assert.Empty(t, prov.Environment)
	assert.Equal(t, 30*time.Second, cfg.Settings.DefaultTimeout)
	assert.True(t, cfg.Settings.ContinueOnFailure)
	assert.Equal(t, "warn", cfg.Settings.LogLevel)
	assert.Equal(t, 4, cfg.Settings.MaxConcurrency)
	assert.Equal(t, []string{".hookmux/plugins"}, cfg.Loader.SearchPaths)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	t.Setenv(EnvName, "")
	path := writeConfig(t, "config.yml", `
settings:
  defaultTimeout: 5s
  logLevel: debug
plugins:
  - name: safety
    enabled: false
  - name: lint-check
    priority: 15
    config:
      strict: true
    conditions:
      - env_var: CI
`)

	cfg, prov, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, prov.Path)
	assert.Equal(t, 5*time.Second, cfg.Settings.DefaultTimeout)
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	// Keys the file does not mention keep their defaults.
	assert.True(t, cfg.Settings.ContinueOnFailure)
	assert.Equal(t, 4, cfg.Settings.MaxConcurrency)

	require.Len(t, cfg.Plugins, 2)
	require.NotNil(t, cfg.Plugins[0].Enabled)
	assert.False(t, *cfg.Plugins[0].Enabled)
	require.NotNil(t, cfg.Plugins[1].Priority)
	assert.Equal(t, 15, *cfg.Plugins[1].Priority)
	assert.Equal(t, true, cfg.Plugins[1].Settings["strict"])
	require.Len(t, cfg.Plugins[1].When, 1)
	assert.Equal(t, "CI", cfg.Plugins[1].When[0].EnvVar)
}

func TestLoadJSONConfig(t *testing.T) {
	t.Setenv(EnvName, "")
	path := writeConfig(t, "config.json", `{
  "settings": {"logLevel": "error", "maxConcurrency": 8}
}`)

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Settings.LogLevel)
	assert.Equal(t, 8, cfg.Settings.MaxConcurrency)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "config.yml", `
settings:
  defaultTimeout: 30s
  logLevel: warn
environments:
  test:
    settings:
      defaultTimeout: 2s
      logLevel: debug
`)

	t.Run("inactive without HOOKMUX_ENV", func(t *testing.T) {
		t.Setenv(EnvName, "")
		cfg, prov, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, prov.Environment)
		assert.Equal(t, 30*time.Second, cfg.Settings.DefaultTimeout)
	})

	t.Run("active block wins", func(t *testing.T) {
		t.Setenv(EnvName, "test")
		cfg, prov, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "test", prov.Environment)
		assert.Equal(t, 2*time.Second, cfg.Settings.DefaultTimeout)
		assert.Equal(t, "debug", cfg.Settings.LogLevel)
	})

	t.Run("unknown environment is a no-op", func(t *testing.T) {
		t.Setenv(EnvName, "staging")
		cfg, prov, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, prov.Environment)
		assert.Equal(t, 30*time.Second, cfg.Settings.DefaultTimeout)
	})
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv(EnvName, "")
	t.Setenv("HOOKMUX_TEST_LEVEL", "error")
	path := writeConfig(t, "config.yml", `
settings:
  logLevel: ${env://HOOKMUX_TEST_LEVEL}
  maxConcurrency: ${env://HOOKMUX_TEST_WORKERS:-2}
`)

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Settings.LogLevel)
	// Unset variable falls back to its default.
	assert.Equal(t, 2, cfg.Settings.MaxConcurrency)
}

func TestLoadExecutableConfig(t *testing.T) {
	t.Setenv(EnvName, "")
	path := filepath.Join(t.TempDir(), "config.yml")
	script := "#!/bin/sh\necho 'settings:'\necho '  logLevel: debug'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
}

func TestLoadExecutableConfigFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	script := "#!/bin/sh\necho 'no config here' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, hooks.KindConfiguration, hooks.KindOf(err))
	assert.Contains(t, err.Error(), "no config here")
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvName, "")

	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"malformed yaml", "settings: [unterminated", "parsing"},
		{"bad log level", "settings:\n  logLevel: loud", "logLevel"},
		{"negative timeout", "settings:\n  defaultTimeout: -5s", "defaultTimeout"},
		{"negative concurrency", "settings:\n  maxConcurrency: -1", "maxConcurrency"},
		{"nameless plugin", "plugins:\n  - priority: 3", "name is required"},
		{"duplicate plugin", "plugins:\n  - name: twice\n  - name: twice", "duplicate"},
		{"unknown plugin event", "plugins:\n  - name: p\n    events: [OnBoot]", "unknown event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yml", tt.content)
			_, _, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, hooks.KindConfiguration, hooks.KindOf(err))
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Equal(t, hooks.KindConfiguration, hooks.KindOf(err))
}

func TestResolveDefaultPathPrefersProjectLocal(t *testing.T) {
	t.Setenv(EnvName, "")
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.MkdirAll(".hookmux", 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(".hookmux", "config.yml"),
		[]byte("settings:\n  logLevel: info\n"), 0o644))

	cfg, prov, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".hookmux", "config.yml"), prov.Path)
	assert.Equal(t, "info", cfg.Settings.LogLevel)
}

func TestPluginOverrides(t *testing.T) {
	priority := 3
	cfg := &Config{
		Plugins: []plugin.Config{
			{Name: "safety", Priority: &priority},
			{Name: "audit", Settings: map[string]any{"path": "custom.jsonl"}},
		},
		Rules: map[string]map[string]any{
			"safety": {"allowSubstitution": true},
			"backup": {"dir": "snapshots"},
		},
	}

	overrides := cfg.PluginOverrides()
	require.Len(t, overrides, 3)

	// Rules fold into the plugin's settings when it has none of its own.
	assert.Equal(t, true, overrides["safety"].Settings["allowSubstitution"])
	assert.Equal(t, &priority, overrides["safety"].Priority)

	// A plugin's explicit settings win over its rules entry.
	assert.Equal(t, "custom.jsonl", overrides["audit"].Settings["path"])

	// A bare rules entry still produces an override.
	assert.Equal(t, "snapshots", overrides["backup"].Settings["dir"])
}
