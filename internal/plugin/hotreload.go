package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// ReloadType classifies what happened to a plugin file.
type ReloadType string

const (
	ReloadAdded   ReloadType = "added"
	ReloadChanged ReloadType = "changed"
	ReloadRemoved ReloadType = "removed"
)

// HotReloadEvent is emitted by the watcher for each settled file change.
type HotReloadEvent struct {
	Type   ReloadType
	Path   string
	Plugin *Manifest // resolved for added/changed when the file parses
	Err    error     // load failure for added/changed
}

// Watcher turns raw filesystem notifications into debounced
// HotReloadEvents. Rapid successive writes to one path coalesce into a
// single event; settled events flow through a bounded queue drained by
// exactly one consumer loop, so reload handling never overlaps itself.
type Watcher struct {
	loader  *Loader
	manager *Manager
	config  Config
	logger  *slog.Logger
	delay   time.Duration

	fsw    *fsnotify.Watcher
	events chan HotReloadEvent
	notify func(HotReloadEvent)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	closeCh chan struct{}
	done    sync.WaitGroup
}

// NewWatcher creates a hot-reload watcher over the loader's search paths.
// A non-positive debounce delay gets a sane default.
func NewWatcher(loader *Loader, manager *Manager, logger *slog.Logger, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, hooks.NewError(hooks.KindDiscovery, "creating filesystem watcher", err)
	}

	w := &Watcher{
		loader:  loader,
		manager: manager,
		logger:  logger,
		delay:   delay,
		fsw:     fsw,
		events:  make(chan HotReloadEvent, 64),
		pending: make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
	}

	for _, root := range loader.config.SearchPaths {
		if _, statErr := os.Stat(root); statErr != nil {
			continue
		}
		if err := fsw.Add(root); err != nil {
			fsw.Close()
			return nil, hooks.NewError(hooks.KindDiscovery, "watching "+root, err)
		}
		if loader.config.Recursive {
			// fsnotify watches are not recursive; register known subdirs
			// too. Directories created later are picked up on restart.
			filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
				if err != nil || !d.IsDir() || path == root {
					return nil
				}
				_ = fsw.Add(path)
				return nil
			})
		}
	}

	w.done.Add(2)
	go w.watchLoop()
	go w.applyLoop()
	return w, nil
}

// Notify installs an observer called after each event is applied. The
// internal queue keeps a single consumer; observers must not block long.
func (w *Watcher) Notify(fn func(HotReloadEvent)) { w.notify = fn }

// Close stops both loops and releases the filesystem watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.done.Wait()
	return err
}

// watchLoop debounces raw fsnotify events per path.
func (w *Watcher) watchLoop() {
	defer w.done.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.loader.matches(filepath.Base(ev.Name)) {
				continue
			}
			w.debounce(ev.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// debounce (re)arms the per-path timer. The settled callback classifies
// the change by looking at the file, not at the raw op: editors produce
// chmod/rename storms that would otherwise misclassify.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, exists := w.pending[path]; exists {
		timer.Reset(w.delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.settle(path)
	})
}

// settle fires once per quiet path and queues the classified event. A
// full queue drops the event rather than blocking the timer goroutine; the
// next write re-triggers anyway.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	event := w.classify(path)

	select {
	case w.events <- event:
	case <-w.closeCh:
	default:
		w.logger.Warn("reload queue full, dropping event", "path", path)
	}
}

// classify resolves the settled state of a path into added/changed/removed.
func (w *Watcher) classify(path string) HotReloadEvent {
	if _, err := os.Stat(path); err != nil {
		return HotReloadEvent{Type: ReloadRemoved, Path: path}
	}

	w.loader.Invalidate(path)
	name := PluginNameFromPath(path)

	typ := ReloadAdded
	if _, registered := w.manager.Get(name); registered {
		typ = ReloadChanged
	}

	manifest, err := LoadManifest(path)
	if err != nil {
		return HotReloadEvent{Type: typ, Path: path, Err: err}
	}
	return HotReloadEvent{Type: typ, Path: path, Plugin: manifest}
}

// applyLoop is the single consumer that applies reload events to the
// manager: unregister-then-register on added/changed, unregister on
// removed. In-flight chains are safe; they run on their own snapshot.
func (w *Watcher) applyLoop() {
	defer w.done.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.events:
			if !ok {
				return
			}
			w.apply(event)
			if w.notify != nil {
				w.notify(event)
			}
		}
	}
}

func (w *Watcher) apply(event HotReloadEvent) {
	switch event.Type {
	case ReloadRemoved:
		name := PluginNameFromPath(event.Path)
		if w.manager.Unregister(name) {
			w.logger.Info("plugin removed", "plugin", name, "path", event.Path)
		}

	case ReloadAdded, ReloadChanged:
		if event.Err != nil {
			w.logger.Warn("plugin reload failed", "path", event.Path, "error", event.Err)
			return
		}
		name := event.Plugin.Name
		w.manager.Unregister(name)
		if err := w.manager.Register(event.Plugin.ToPlugin(), event.Plugin.ManifestConfig()); err != nil {
			w.logger.Warn("plugin re-register failed", "plugin", name, "error", err)
			return
		}
		w.logger.Info("plugin reloaded", "plugin", name, "type", string(event.Type))
	}
}
