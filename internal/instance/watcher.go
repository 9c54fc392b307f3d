package instance

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"maestro/pkg/logging"
)

const watcherSubsystem = "DefinitionsWatcher"

// defaultDebounceInterval is how long the watcher waits for further
// writes to the same file before applying it. Editors and config
// management tools rarely write a file in one syscall.
const defaultDebounceInterval = 500 * time.Millisecond

// DefinitionsWatcher watches the definitions directory and applies
// created or rewritten definition files at runtime. Deleting a file
// never deletes an instance; teardown stays an explicit operator
// action.
type DefinitionsWatcher struct {
	mu sync.Mutex

	service  *Service
	dir      string
	debounce time.Duration

	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	stopCh  chan struct{}
	running bool
}

// NewDefinitionsWatcher creates a watcher for dir. A zero debounce
// means the 500 ms default.
func NewDefinitionsWatcher(service *Service, dir string, debounce time.Duration) *DefinitionsWatcher {
	if debounce <= 0 {
		debounce = defaultDebounceInterval
	}
	return &DefinitionsWatcher{
		service:  service,
		dir:      dir,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the definitions directory, creating it first
// when it does not exist.
func (w *DefinitionsWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	go w.processEvents(ctx)

	logging.Info(watcherSubsystem, "Watching %s for instance definitions", w.dir)
	return nil
}

func (w *DefinitionsWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return

		case <-w.stopCh:
			w.cancelPending()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error(watcherSubsystem, err, "Definitions watcher error")
		}
	}
}

func (w *DefinitionsWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isYAMLFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.debounceApply(ctx, event.Name)
}

// debounceApply schedules the file for application, resetting the
// timer when the file is written again within the debounce window.
func (w *DefinitionsWatcher) debounceApply(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.applyFile(ctx, path)
	})
}

func (w *DefinitionsWatcher) applyFile(ctx context.Context, path string) {
	def, err := LoadDefinition(path)
	if err != nil {
		logging.Warn(watcherSubsystem, "Skipping definition %s: %v", filepath.Base(path), err)
		return
	}
	created, err := w.service.ApplyDefinition(ctx, def)
	if err != nil {
		logging.Warn(watcherSubsystem, "Failed to apply definition %s: %v", filepath.Base(path), err)
		return
	}
	if created {
		logging.Info(watcherSubsystem, "Created instance %q from %s", def.Name, filepath.Base(path))
	}
}

func (w *DefinitionsWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
}

// Stop closes the watcher and cancels any pending applications.
func (w *DefinitionsWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			logging.Error(watcherSubsystem, err, "Error closing definitions watcher")
		}
		w.watcher = nil
	}
	logging.Info(watcherSubsystem, "Stopped definitions watcher")
}
