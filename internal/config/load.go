package config

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// Load resolves, parses, and merges the configuration. With an empty path
// it searches the default locations; no file at all is not an error, the
// defaults apply. A file that exists but fails to parse or validate is a
// hard configuration error.
//
// Merge order, lowest to highest precedence: built-in defaults, the config
// file, the environments block named by HOOKMUX_ENV.
func Load(path string) (*Config, Provenance, error) {
	start := time.Now()
	prov := Provenance{}

	if path == "" {
		path = resolveDefaultPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, prov, err
		}

		substituted, err := (&EnvSubstituter{}).SubstituteEnvVars(string(content))
		if err != nil {
			return nil, prov, hooks.NewError(hooks.KindConfiguration, "substituting env vars in "+path, err)
		}

		if filepath.Ext(path) == ".json" {
			v.SetConfigType("json")
		}
		if err := v.ReadConfig(strings.NewReader(substituted)); err != nil {
			return nil, prov, hooks.NewError(hooks.KindConfiguration, "parsing "+path, err)
		}
		prov.Path = path
	}

	if env := os.Getenv(EnvName); env != "" {
		if block := v.GetStringMap("environments." + env); len(block) > 0 {
			if err := v.MergeConfigMap(block); err != nil {
				return nil, prov, hooks.NewError(hooks.KindConfiguration,
					"merging environment override "+env, err)
			}
			prov.Environment = env
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, prov, hooks.NewError(hooks.KindConfiguration, "unmarshaling config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, prov, err
	}

	prov.Elapsed = time.Since(start)
	return cfg, prov, nil
}

// readConfigFile returns the file's content. A file with the exec bit set
// is the executable config form: it is run and its stdout is parsed as
// the same shape a plain file would carry.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, hooks.NewError(hooks.KindConfiguration, "reading "+path, err)
	}

	if info.Mode()&0o111 != 0 {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, hooks.NewError(hooks.KindConfiguration, "resolving "+path, err)
		}
		cmd := exec.Command(abs)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, hooks.NewError(hooks.KindConfiguration,
				"executing config "+path+": "+msg, err)
		}
		return stdout.Bytes(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, hooks.NewError(hooks.KindConfiguration, "reading "+path, err)
	}
	return content, nil
}

// resolveDefaultPath returns the first existing default config location,
// or "" when none exists. Project-local config shadows the user-level one.
func resolveDefaultPath() string {
	names := []string{"config.yml", "config.yaml", "config.json"}

	var candidates []string
	for _, name := range names {
		candidates = append(candidates, filepath.Join(".hookmux", name))
	}
	configDir := userConfigDir()
	for _, name := range names {
		candidates = append(candidates, filepath.Join(configDir, "hookmux", name))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// userConfigDir follows the XDG Base Directory specification.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

// setDefaults seeds viper with the built-in defaults so partial files
// merge over them key by key.
func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("settings.defaulttimeout", def.Settings.DefaultTimeout)
	v.SetDefault("settings.continueonfailure", def.Settings.ContinueOnFailure)
	v.SetDefault("settings.collectmetrics", def.Settings.CollectMetrics)
	v.SetDefault("settings.enablehotreload", def.Settings.EnableHotReload)
	v.SetDefault("settings.loglevel", def.Settings.LogLevel)
	v.SetDefault("settings.maxconcurrency", def.Settings.MaxConcurrency)
	v.SetDefault("loader.searchpaths", def.Loader.SearchPaths)
	v.SetDefault("loader.includepatterns", def.Loader.IncludePatterns)
	v.SetDefault("loader.excludepatterns", def.Loader.ExcludePatterns)
	v.SetDefault("loader.recursive", def.Loader.Recursive)
	v.SetDefault("loader.maxdepth", def.Loader.MaxDepth)
	v.SetDefault("loader.enablecache", def.Loader.EnableCache)
	v.SetDefault("loader.validateonload", def.Loader.ValidateOnLoad)
}
