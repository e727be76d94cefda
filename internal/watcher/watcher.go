// Package watcher reindexes automatically when the chunks document on disk
// changes. Events are debounced: ingestion pipelines rewrite the file in
// bursts, and only the quiet period after the last write should trigger a
// rebuild.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change triggers a reload.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc is called with the watched path after the debounce window.
type ReloadFunc func(ctx context.Context, path string) error

// Watcher watches a single chunks document and triggers reloads.
type Watcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc

	fsw    *fsnotify.Watcher
	stopCh chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a watcher for the chunks document at path. The reload
// callback runs after each debounced change burst.
func New(path string, debounce time.Duration, reload ReloadFunc) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     absPath,
		debounce: debounce,
		reload:   reload,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It blocks until the context is cancelled or Stop
// is called. Watching targets the parent directory, not the file itself:
// editors and pipelines replace files by rename, which would silently
// detach a file-level watch.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	slog.Info("watching chunks document",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.matches(event) {
				continue
			}
			w.scheduleReload(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// matches reports whether the event concerns the watched file and a
// content-changing operation.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}

// scheduleReload resets the debounce timer; the reload fires only after a
// full quiet window.
func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.reload(ctx, w.path); err != nil {
			slog.Error("reload after file change failed",
				slog.String("path", w.path),
				slog.String("error", err.Error()))
		}
	})
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.stopCh)
	w.mu.Unlock()

	return w.fsw.Close()
}
