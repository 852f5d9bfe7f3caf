package plugin

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// LoaderConfig controls filesystem discovery.
type LoaderConfig struct {
	SearchPaths     []string `yaml:"searchPaths" json:"searchPaths"`
	IncludePatterns []string `yaml:"includePatterns" json:"includePatterns"`
	ExcludePatterns []string `yaml:"excludePatterns" json:"excludePatterns"`
	Recursive       bool     `yaml:"recursive" json:"recursive"`
	MaxDepth        int      `yaml:"maxDepth" json:"maxDepth"`
	EnableCache     bool     `yaml:"enableCache" json:"enableCache"`
	ValidateOnLoad  bool     `yaml:"validateOnLoad" json:"validateOnLoad"`
}

// DefaultLoaderConfig returns the discovery defaults.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		SearchPaths:     []string{".hookmux/plugins"},
		IncludePatterns: []string{"*.hook.yml", "*.hook.yaml", "*.hook.json"},
		ExcludePatterns: []string{"*.disabled.*"},
		Recursive:       true,
		MaxDepth:        4,
		EnableCache:     true,
		ValidateOnLoad:  true,
	}
}

// LoadError records one plugin file that failed to load. Collected, never
// fatal to the scan.
type LoadError struct {
	Path string
	Err  error
}

// DiscoveryResult is what one scan produced.
type DiscoveryResult struct {
	Plugins []*Manifest
	Errors  []LoadError
}

type cacheEntry struct {
	modTime  time.Time
	manifest *Manifest
}

// Loader discovers plugin manifests on disk. A (path, mtime) cache skips
// re-parsing unchanged files across scans.
type Loader struct {
	config LoaderConfig
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewLoader creates a loader with the given discovery configuration.
func NewLoader(config LoaderConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config: config,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Discover walks every search path for files matching the include patterns
// and not the exclude patterns, loading each as a manifest. One bad file
// never aborts the scan: its error is collected alongside the successes.
func (l *Loader) Discover() DiscoveryResult {
	var result DiscoveryResult
	seen := make(map[string]bool)

	for _, root := range l.config.SearchPaths {
		l.walkRoot(root, seen, &result)
	}
	return result
}

func (l *Loader) walkRoot(root string, seen map[string]bool, result *DiscoveryResult) {
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Missing search paths are normal; anything else is worth a log
			// line but should not stop the walk.
			if path != root {
				l.logger.Debug("discovery walk error", "path", path, "error", err)
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !l.config.Recursive {
				return fs.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if l.config.MaxDepth > 0 && depth >= l.config.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if !l.matches(filepath.Base(path)) || seen[path] {
			return nil
		}
		seen[path] = true

		manifest, err := l.load(path, d)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{Path: path, Err: err})
			return nil
		}
		result.Plugins = append(result.Plugins, manifest)
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors,
			LoadError{Path: root, Err: hooks.NewError(hooks.KindDiscovery, "walking "+root, err)})
	}
}

// load parses one manifest, consulting the mtime cache first.
func (l *Loader) load(path string, d fs.DirEntry) (*Manifest, error) {
	var modTime time.Time
	if info, err := d.Info(); err == nil {
		modTime = info.ModTime()
	}

	if l.config.EnableCache && !modTime.IsZero() {
		l.mu.Lock()
		entry, hit := l.cache[path]
		l.mu.Unlock()
		if hit && entry.modTime.Equal(modTime) {
			return entry.manifest, nil
		}
	}

	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	if l.config.ValidateOnLoad {
		if err := Validate(manifest.ToPlugin()); err != nil {
			return nil, err
		}
	}

	if l.config.EnableCache && !modTime.IsZero() {
		l.mu.Lock()
		l.cache[path] = cacheEntry{modTime: modTime, manifest: manifest}
		l.mu.Unlock()
	}
	return manifest, nil
}

// Invalidate drops a path from the cache, forcing a re-parse on the next
// scan. Hot reload calls it on change events.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// matches applies include then exclude patterns to a base filename.
func (l *Loader) matches(base string) bool {
	included := false
	for _, pattern := range l.config.IncludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range l.config.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return false
		}
	}
	return true
}

// RegisterDiscovered loads every discovered manifest into the manager,
// merging any per-plugin config override by name. Registration failures
// join the error list alongside load failures.
func RegisterDiscovered(m *Manager, result DiscoveryResult, overrides map[string]Config) []LoadError {
	errs := result.Errors
	for _, manifest := range result.Plugins {
		cfg := manifest.ManifestConfig()
		if override, ok := overrides[manifest.Name]; ok {
			cfg = mergeConfig(cfg, override)
		}
		if err := m.Register(manifest.ToPlugin(), cfg); err != nil {
			errs = append(errs, LoadError{Path: manifest.Path(), Err: err})
		}
	}
	return errs
}

// mergeConfig overlays a config-file override onto a manifest's own
// settings. Overrides win where set; condition lists concatenate.
func mergeConfig(base, override Config) Config {
	merged := base
	if override.Enabled != nil {
		merged.Enabled = override.Enabled
	}
	if override.Priority != nil {
		merged.Priority = override.Priority
	}
	if len(override.Events) > 0 {
		merged.Events = override.Events
	}
	if len(override.Tools) > 0 {
		merged.Tools = override.Tools
	}
	if len(override.Settings) > 0 {
		merged.Settings = override.Settings
	}
	merged.When = append(merged.When, override.When...)
	return merged
}
