package opcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "resumind/internal/errors"
)

// StorageWatcher invalidates filesystem-tagged query results when the
// local storage directory changes outside the operation catalog, e.g.
// files removed by hand or by an external cleanup job.
type StorageWatcher struct {
	mu sync.RWMutex

	dir   string
	cache *Cache

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan       chan struct{}
	invalidateChan chan struct{}

	logger  *apperrors.Logger
	running bool
}

// NewStorageWatcher creates a watcher over the local storage directory.
func NewStorageWatcher(dir string, cache *Cache, debounceDelay time.Duration, logger *apperrors.Logger) *StorageWatcher {
	if debounceDelay == 0 {
		debounceDelay = time.Second
	}
	return &StorageWatcher{
		dir:            dir,
		cache:          cache,
		debounceDelay:  debounceDelay,
		invalidateChan: make(chan struct{}, 1),
		logger:         logger,
	}
}

// Start begins watching the storage directory.
func (w *StorageWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("storage watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch storage directory %s: %w", w.dir, err)
	}
	w.fsWatcher = watcher
	// A stopped watcher leaves stopChan closed; a restart needs a fresh one.
	w.stopChan = make(chan struct{})
	w.running = true

	go w.watchLoop(watcher, w.stopChan)

	if w.logger != nil {
		w.logger.Info("Storage directory watcher started",
			"dir", w.dir,
			"debounce_delay", w.debounceDelay)
	}
	return nil
}

// Stop stops the watcher.
func (w *StorageWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.stopChan)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	if err := w.fsWatcher.Close(); err != nil {
		if w.logger != nil {
			w.logger.LogError(err, "Failed to close file system watcher")
		}
		return err
	}
	w.running = false
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *StorageWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *StorageWatcher) watchLoop(fsWatcher *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleInvalidate()
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.LogError(err, "Storage watcher error")
			}

		case <-w.invalidateChan:
			if w.logger != nil {
				w.logger.Debug("Storage directory changed, invalidating cached listings")
			}
			w.cache.Invalidate(TagFS)

		case <-stop:
			return
		}
	}
}

// scheduleInvalidate debounces bursts of filesystem events into one
// invalidation.
func (w *StorageWatcher) scheduleInvalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.invalidateChan <- struct{}{}:
		default:
		}
	})
}
