package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// WatcherStatus reports the watcher's activity.
type WatcherStatus struct {
	Active     bool      `json:"active"`
	WatchPaths []string  `json:"watch_paths"`
	EventCount int       `json:"event_count"`
	ErrorCount int       `json:"error_count"`
	LastEvent  time.Time `json:"last_event"`
	LastError  string    `json:"last_error,omitempty"`
}

// Watcher reloads plugins whose manifest changes on disk.
type Watcher struct {
	log      *logger.Logger
	loader   *Loader
	watcher  *fsnotify.Watcher
	delay    time.Duration
	status   WatcherStatus
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the loader's plugins directory.
func NewWatcher(log *logger.Logger, loader *Loader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		log:     log.Component("plugin-watcher"),
		loader:  loader,
		watcher: fsw,
		delay:   250 * time.Millisecond,
		status:  WatcherStatus{WatchPaths: []string{}},
	}, nil
}

// Start watches the plugins directory and each plugin folder in it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.status.Active {
		w.mu.Unlock()
		return nil
	}

	dir := w.loader.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		return err
	}
	w.status.WatchPaths = append(w.status.WatchPaths, dir)

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() && !skipFolder(entry.Name()) {
				w.addLocked(filepath.Join(dir, entry.Name()))
			}
		}
	}

	w.status.Active = true
	w.mu.Unlock()

	w.log.Info("Plugin watcher started", zap.String("dir", dir))

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.status.Active = false
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}

// Status returns the current watcher status.
func (w *Watcher) Status() WatcherStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := w.status
	status.WatchPaths = append([]string(nil), w.status.WatchPaths...)
	return status
}

// addLocked requires w.mu.
func (w *Watcher) addLocked(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("Failed to watch plugin folder", zap.String("path", path), zap.Error(err))
		return
	}
	w.status.WatchPaths = append(w.status.WatchPaths, path)
}

func (w *Watcher) processEvents(ctx context.Context) {
	timers := make(map[string]*time.Timer)
	var timersMu sync.Mutex

	defer func() {
		timersMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timersMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Plugin watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			folder, isDir := w.folderOf(event)
			if folder == "" {
				continue
			}
			if isDir && event.Op&fsnotify.Create != 0 {
				w.mu.Lock()
				w.addLocked(event.Name)
				w.mu.Unlock()
			}

			// Coalesce bursts of writes per folder.
			timersMu.Lock()
			if t, exists := timers[folder]; exists {
				t.Stop()
			}
			timers[folder] = time.AfterFunc(w.delay, func() {
				timersMu.Lock()
				delete(timers, folder)
				timersMu.Unlock()
				w.sync(ctx, folder)
			})
			timersMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.mu.Lock()
			w.status.ErrorCount++
			w.status.LastError = err.Error()
			w.mu.Unlock()

			w.log.Warn("Plugin watcher error", zap.Error(err))
		}
	}
}

// folderOf maps an event to the plugin folder it concerns. Only the folder
// itself and its manifest are of interest.
func (w *Watcher) folderOf(event fsnotify.Event) (folder string, isDir bool) {
	rel, err := filepath.Rel(w.loader.Dir(), event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if skipFolder(parts[0]) {
		return "", false
	}
	switch len(parts) {
	case 1:
		return parts[0], true
	case 2:
		if parts[1] == ManifestFile {
			return parts[0], false
		}
	}
	return "", false
}

// sync brings the loaded state of folder in line with the disk.
func (w *Watcher) sync(ctx context.Context, folder string) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	w.status.EventCount++
	w.status.LastEvent = time.Now()
	w.mu.Unlock()

	name, loaded := w.loader.ByFolder(folder)
	_, statErr := os.Stat(filepath.Join(w.loader.Dir(), folder, ManifestFile))
	present := statErr == nil

	switch {
	case present && loaded:
		w.log.Info("Plugin changed on disk, reloading", zap.String("plugin", name))
		w.loader.Reload(ctx, name)
	case present:
		if cfg := w.loader.config; cfg != nil && cfg.PluginDisabled(folder) {
			return
		}
		w.log.Info("New plugin found on disk", zap.String("folder", folder))
		w.loader.LoadOne(ctx, folder)
	case loaded && errors.Is(statErr, os.ErrNotExist):
		w.log.Info("Plugin removed from disk, unloading", zap.String("plugin", name))
		w.loader.Unload(ctx, name)
	}
}
