// Package host adapts the engine to the tool-execution host: one JSON
// event in on stdin, a verdict out as an exit code or a JSON line.
package host

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/osi4iot/hookmux/internal/builtin"
	"github.com/osi4iot/hookmux/internal/config"
	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

// Exit codes of the host protocol.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitBlocking = 2
)

// Options configure engine assembly.
type Options struct {
	ConfigPath  string
	JSONMode    bool
	ShowStats   bool
	NoDiscovery bool
	LogWriter   io.Writer // defaults to stderr
}

// Engine is the assembled orchestration stack: configuration, registry,
// plugin manager, discovery, and optionally a hot-reload watcher.
type Engine struct {
	Config     *config.Config
	Provenance config.Provenance
	Registry   *hooks.Registry
	Manager    *plugin.Manager
	Loader     *plugin.Loader

	logger  *slog.Logger
	opts    Options
	watcher *plugin.Watcher
}

// New loads configuration and wires the full engine: builtins first, then
// discovered manifest plugins with their config overrides. Discovery
// failures are logged, never fatal; a malformed config file is.
func New(opts Options) (*Engine, error) {
	cfg, prov, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	logger := newLogger(logWriter, cfg.Settings.LogLevel)

	registry := hooks.NewRegistry()
	registry.SetContinueOnFailure(cfg.Settings.ContinueOnFailure)
	registry.SetCollectMetrics(cfg.Settings.CollectMetrics)

	manager := plugin.NewManager(registry, logger)
	if cfg.Settings.DefaultTimeout > 0 {
		manager.SetDefaultTimeout(cfg.Settings.DefaultTimeout)
	}

	overrides := cfg.PluginOverrides()
	if err := builtin.NewRegistry().RegisterAll(manager, overrides); err != nil {
		return nil, err
	}

	loader := plugin.NewLoader(cfg.Loader, logger)
	engine := &Engine{
		Config:     cfg,
		Provenance: prov,
		Registry:   registry,
		Manager:    manager,
		Loader:     loader,
		logger:     logger,
		opts:       opts,
	}

	if !opts.NoDiscovery {
		result := loader.Discover()
		for _, loadErr := range plugin.RegisterDiscovered(manager, result, overrides) {
			logger.Warn("plugin load failed", "path", loadErr.Path, "error", loadErr.Err)
		}
	}

	if err := manager.InitAll(context.Background()); err != nil {
		return nil, err
	}

	logger.Debug("engine ready",
		"config", prov.Path, "environment", prov.Environment,
		"entries", registry.Len(), "elapsed", prov.Elapsed)
	return engine, nil
}

// StartWatcher begins hot reload over the loader's search paths. No-op
// when the settings disable it.
func (e *Engine) StartWatcher() error {
	if !e.Config.Settings.EnableHotReload || e.watcher != nil {
		return nil
	}
	w, err := plugin.NewWatcher(e.Loader, e.Manager, e.logger, 0)
	if err != nil {
		return err
	}
	e.watcher = w
	return nil
}

// Close shuts down the watcher and every plugin holding resources.
func (e *Engine) Close() error {
	var firstErr error
	if e.watcher != nil {
		firstErr = e.watcher.Close()
		e.watcher = nil
	}
	if err := e.Manager.ShutdownAll(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// RunOnce processes a single host event from r and writes the verdict.
// The returned value is the process exit code. Every failure path still
// produces a well-formed verdict; unexpected top-level errors block
// rather than silently letting the operation proceed.
func (e *Engine) RunOnce(ctx context.Context, r io.Reader, stdout, stderr io.Writer) int {
	in, err := hooks.ParseInput(r)
	if err != nil {
		return e.fail(stdout, stderr, err)
	}

	ec, err := hooks.NewContext(in)
	if err != nil {
		return e.fail(stdout, stderr, err)
	}

	verdict, err := e.Registry.ExecuteAndCombine(ctx, ec)
	if err != nil {
		return e.fail(stdout, stderr, err)
	}

	if e.opts.ShowStats {
		writeStats(stderr, e.Registry.Stats("", ""))
	}
	return e.respond(stdout, stderr, ec.Event, verdict)
}

// fail emits a fail-closed verdict for a top-level error.
func (e *Engine) fail(stdout, stderr io.Writer, err error) int {
	e.logger.Error("hook execution failed", "error", err)
	verdict := hooks.Blocked(err.Error())
	return e.respond(stdout, stderr, hooks.PreToolUse, verdict)
}

// respond translates the combined result into the selected output mode.
func (e *Engine) respond(stdout, stderr io.Writer, event hooks.HookEvent, verdict hooks.Result) int {
	if e.opts.JSONMode {
		writeJSONVerdict(stdout, event, verdict)
		return ExitOK
	}

	switch {
	case verdict.Blocking(event):
		if verdict.Message != "" {
			io.WriteString(stderr, verdict.Message+"\n")
		}
		return ExitBlocking
	case !verdict.Success:
		if verdict.Message != "" {
			io.WriteString(stderr, verdict.Message+"\n")
		}
		return ExitFailure
	default:
		if msg := strings.TrimSpace(verdict.Message); msg != "" {
			io.WriteString(stdout, msg+"\n")
		}
		return ExitOK
	}
}

// newLogger builds the engine's slog logger at the configured level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
