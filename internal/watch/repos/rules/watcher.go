package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
)

// Watcher flags changes to a set of files in one directory. The directory
// is watched rather than the files so atomic replace-by-rename is seen.
type Watcher struct {
	fsw    *fsnotify.Watcher
	names  map[string]struct{}
	dirty  atomic.Bool
	logger logpkg.Logger
	done   chan struct{}
}

// NewWatcher starts watching dir for writes, creates, renames and removes
// of the given base names.
func NewWatcher(dir string, names []string, logger logpkg.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[filepath.Base(n)] = struct{}{}
	}
	return &Watcher{fsw: fsw, names: set, logger: logger, done: make(chan struct{})}, nil
}

// Run consumes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(map[string]any{"error": err}, "rules_watch_error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if _, ok := w.names[filepath.Base(ev.Name)]; !ok {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if !w.dirty.Swap(true) {
		w.logger.Debug(map[string]any{"file": ev.Name, "op": ev.Op.String()}, "rules_changed")
	}
}

// Changed reports whether a watched file changed since the last call.
func (w *Watcher) Changed() bool {
	return w.dirty.Swap(false)
}

// Close stops the watcher. A running Run returns once the event channels close.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} { return w.done }
