package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/edgekit/device-manager/internal/logger"
)

// debounceDelay is how long the watcher waits after the last event before
// reloading. Editors and configmap updates fire several events per save,
// often with partial file content in between; only the state after the
// burst settles matters.
const debounceDelay = 100 * time.Millisecond

// Watcher re-applies the overlay file whenever it changes on disk and hands
// the merged configuration to a callback.
//
// The watcher observes the parent directory rather than the file itself so
// that atomic-rename writes (the common editor and configmap update pattern)
// are still seen.
type Watcher struct {
	path     string
	base     *Config
	onChange func(*Config)

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending *time.Timer
}

// NewWatcher creates a watcher for the overlay file at path. onChange is
// invoked with the merged configuration after every successful reload.
func NewWatcher(path string, base *Config, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		base:     base,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher. A reload already scheduled may still fire.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

// scheduleReload arms the debounce timer, pushing it out again on every
// event so the reload runs once, after the burst quiets, and always sees
// the final file content.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	overlay, err := LoadOverlay(w.path)
	if err != nil {
		logger.Warn("Ignoring overlay reload: %v", err)
		return
	}

	merged, err := overlay.Apply(w.base)
	if err != nil {
		logger.Warn("Ignoring overlay reload: %v", err)
		return
	}

	logger.Info("Configuration overlay reloaded from %s", w.path)
	w.onChange(merged)
}
