package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies listeners when the configuration file changes on disk.
// Used by the scheduled mode so a running service picks up edits without a
// restart.
type Watcher struct {
	watcher    *fsnotify.Watcher
	path       string
	logger     *slog.Logger
	reloadChan chan struct{}
}

// StartWatcher watches the configuration file at path.
func StartWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the parent directory; editors replace files rather than writing
	// in place, which would silently drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		watcher:    fsw,
		path:       filepath.Clean(path),
		logger:     logger,
		reloadChan: make(chan struct{}, 1),
	}
	go w.watch()
	return w, nil
}

// ReloadChan returns a channel that receives a notification when the config
// file changes. The channel is closed when the watcher stops.
func (w *Watcher) ReloadChan() <-chan struct{} {
	return w.reloadChan
}

func (w *Watcher) watch() {
	defer close(w.reloadChan)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Info("detected configuration change", "path", event.Name)
				select {
				case w.reloadChan <- struct{}{}:
				default:
					// A reload is already pending.
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and closes the reload channel.
func (w *Watcher) Stop() error {
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
