package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osi4iot/hookmux/internal/hooks"
)

func loaderFor(t *testing.T, dir string, mutate func(*LoaderConfig)) *Loader {
	t.Helper()
	cfg := DefaultLoaderConfig()
	cfg.SearchPaths = []string{dir}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewLoader(cfg, nil)
}

func writePluginFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validManifest = `
version: 1.0.0
events: [PreToolUse]
command: exit 0
`

func TestDiscoverCollectsGoodAndBad(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "good-one.hook.yml", validManifest)
	writePluginFile(t, dir, "good-two.hook.yaml", validManifest)
	badPath := writePluginFile(t, dir, "broken.hook.yml", "events: [unterminated")
	writePluginFile(t, dir, "ignored.txt", "not a manifest")

	result := loaderFor(t, dir, nil).Discover()

	require.Len(t, result.Plugins, 2)
	names := []string{result.Plugins[0].Name, result.Plugins[1].Name}
	assert.ElementsMatch(t, []string{"good-one", "good-two"}, names)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, badPath, result.Errors[0].Path)
	assert.Equal(t, hooks.KindDiscovery, hooks.KindOf(result.Errors[0].Err))
}

func TestDiscoverMissingSearchPath(t *testing.T) {
	result := loaderFor(t, filepath.Join(t.TempDir(), "absent"), nil).Discover()
	assert.Empty(t, result.Plugins)
	assert.Empty(t, result.Errors)
}

func TestDiscoverExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "active.hook.yml", validManifest)
	writePluginFile(t, dir, "retired.disabled.hook.yml", validManifest)

	result := loaderFor(t, dir, nil).Discover()

	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "active", result.Plugins[0].Name)
}

func TestDiscoverRecursionAndDepth(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "top.hook.yml", validManifest)
	writePluginFile(t, dir, filepath.Join("nested", "deep.hook.yml"), validManifest)
	writePluginFile(t, dir, filepath.Join("a", "b", "c", "d", "buried.hook.yml"), validManifest)

	t.Run("recursive with depth limit", func(t *testing.T) {
		result := loaderFor(t, dir, func(c *LoaderConfig) { c.MaxDepth = 2 }).Discover()
		var names []string
		for _, m := range result.Plugins {
			names = append(names, m.Name)
		}
		assert.ElementsMatch(t, []string{"top", "deep"}, names)
	})

	t.Run("non-recursive", func(t *testing.T) {
		result := loaderFor(t, dir, func(c *LoaderConfig) { c.Recursive = false }).Discover()
		require.Len(t, result.Plugins, 1)
		assert.Equal(t, "top", result.Plugins[0].Name)
	})
}

func TestDiscoverCacheSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writePluginFile(t, dir, "cached.hook.yml", validManifest)

	loader := loaderFor(t, dir, nil)

	first := loader.Discover()
	require.Len(t, first.Plugins, 1)

	second := loader.Discover()
	require.Len(t, second.Plugins, 1)
	// Same mtime means the cached manifest object is reused.
	assert.Same(t, first.Plugins[0], second.Plugins[0])

	loader.Invalidate(path)
	third := loader.Discover()
	require.Len(t, third.Plugins, 1)
	assert.NotSame(t, first.Plugins[0], third.Plugins[0])
}

func TestRegisterDiscovered(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "gate.hook.yml", `
version: 1.0.0
events: [PreToolUse]
tools: [Bash]
command: exit 0
`)
	writePluginFile(t, dir, "logger.hook.yml", `
version: 1.0.0
events: [PostToolUse]
command: cat > /dev/null
`)

	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	result := loaderFor(t, dir, nil).Discover()
	errs := RegisterDiscovered(m, result, nil)

	assert.Empty(t, errs)
	assert.Equal(t, []string{"gate", "logger"}, m.Names())
	assert.Len(t, registry.Hooks(hooks.PreToolUse, hooks.ToolBash), 1)
}

func TestRegisterDiscoveredAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "tunable.hook.yml", `
version: 1.0.0
events: [PreToolUse]
tools: [Bash]
priority: 1
command: exit 0
`)

	registry := hooks.NewRegistry()
	m := NewManager(registry, nil)

	priority := 42
	errs := RegisterDiscovered(m, loaderFor(t, dir, nil).Discover(), map[string]Config{
		"tunable": {Priority: &priority},
	})
	require.Empty(t, errs)

	entries := registry.Hooks(hooks.PreToolUse, hooks.ToolBash)
	require.Len(t, entries, 1)
	assert.Equal(t, 42, entries[0].Priority)
}

func TestRegisterDiscoveredCollectsRegistrationFailures(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "taken.hook.yml", validManifest)

	m := NewManager(hooks.NewRegistry(), nil)
	require.NoError(t, m.Register(testPlugin("taken"), Config{}))

	errs := RegisterDiscovered(m, loaderFor(t, dir, nil).Discover(), nil)
	require.Len(t, errs, 1)
	assert.Equal(t, hooks.KindValidation, hooks.KindOf(errs[0].Err))
}
