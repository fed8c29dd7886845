// Package watcher observes the archive database file with fsnotify and
// notifies the caches when another process writes to it. Events are debounced
// so a burst of writes (an import run, a sync job) triggers one invalidation.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches the database file and invokes onChange after external writes.
type Watcher struct {
	dbPath   string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher for the database at dbPath. onChange is called
// once per debounced burst of writes.
func NewWatcher(dbPath string, onChange func(), logger *zap.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		dbPath:   filepath.Clean(dbPath),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	// Watch the containing directory: sqlite replaces journal files, and
	// watching the file directly loses the watch on rename.
	if err := fsw.Add(filepath.Dir(w.dbPath)); err != nil {
		_ = fsw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("database watcher started", zap.String("path", w.dbPath))
	go w.run(ctx, fsw)
	return nil
}

// run drains fsw until its channels close. The watcher is passed in rather
// than read from the struct so Stop can tear the shared field down without
// racing this loop; closing the watcher closes both channels, which is the
// loop's exit signal.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("database watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !w.isDatabaseFile(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("database change detected", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.scheduleChange()
}

// isDatabaseFile matches the database itself and its WAL/journal companions,
// which is where most writes land under WAL mode.
func (w *Watcher) isDatabaseFile(path string) bool {
	clean := filepath.Clean(path)
	if clean == w.dbPath {
		return true
	}
	return strings.HasPrefix(clean, w.dbPath+"-")
}

func (w *Watcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
