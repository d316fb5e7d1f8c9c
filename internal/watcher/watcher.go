// Package watcher triggers a collection rebuild when the data directory changes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// ChangeFunc is called once per burst of changes to matching files.
type ChangeFunc func(ctx context.Context) error

// Watcher watches a single directory (not recursive, like the loader) and invokes onChange
// after matching files have been quiet for the debounce interval.
type Watcher struct {
	dir        string
	extensions []string
	onChange   ChangeFunc
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	pending  []string
	ctx      context.Context
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	runs     sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before onChange fires. Non-positive values keep the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for dir. extensions filter which files count as changes
// (empty = all).
func NewWatcher(dir string, extensions []string, onChange ChangeFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:        filepath.Clean(dir),
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. A missing directory is created so files can be dropped into it later.
// It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Info("watching data directory",
		zap.String("dir", w.dir),
		zap.Strings("extensions", w.extensions),
		zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw.Events, fw.Errors)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Dir(filepath.Clean(ev.Name)) != w.dir {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !matchExtension(ev.Name, w.extensions) {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return
		}
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule(ev.Name)
}

// schedule restarts the debounce timer; a burst of events collapses into one onChange call.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.pending = append(w.pending, path)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	paths := w.pending
	w.pending = nil
	w.timer = nil
	ctx := w.ctx
	w.runs.Add(1)
	w.mu.Unlock()
	defer w.runs.Done()

	w.logger.Info("data directory changed, rebuilding", zap.Int("events", len(paths)))
	if w.onChange == nil {
		return
	}
	if err := w.onChange(ctx); err != nil {
		w.logger.Warn("rebuild after change failed", zap.Error(err))
	}
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

// Stop stops the watcher, drops pending changes and waits for a running onChange to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = nil
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.runs.Wait()
}
