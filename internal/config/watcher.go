package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0Reliance/maeple/internal/logging"
)

// Watcher hot-reloads config.yaml and hands every valid new Config to the
// registered callbacks. An edit that fails validation is logged and skipped;
// the running configuration stays as it was.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	current     *Config
	callbacks   []func(*Config)
	pending     bool
	lastEvent   time.Time
	debounceDur time.Duration
}

// NewWatcher creates a watcher over the given config file. The initial
// config must already be loaded; the watcher only handles changes.
func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:        path,
		watcher:     fw,
		current:     initial,
		debounceDur: 500 * time.Millisecond, // editors fire several events per save
	}, nil
}

// OnReload registers a callback invoked with each validated new config.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run blocks until ctx is cancelled, reloading on changes to the config
// file. Save bursts are coalesced: events mark the file dirty, and the
// reload happens once the burst has settled past the debounce window, so
// the last write of a burst is always the one served.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	logging.Get(logging.CategoryConfig).Info("Watching %s for changes", w.path)

	settle := time.NewTicker(100 * time.Millisecond)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.lastEvent = time.Now()
			w.mu.Unlock()
		case <-settle.C:
			w.mu.Lock()
			settled := w.pending && time.Since(w.lastEvent) >= w.debounceDur
			if settled {
				w.pending = false
			}
			w.mu.Unlock()
			if settled {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryConfig).Error("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Get(logging.CategoryConfig).Error("Reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Get(logging.CategoryConfig).Error("Reload rejected: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	logging.Get(logging.CategoryConfig).Info("Configuration reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
