package configwatch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"evergreen/pkg/logging"
)

// Handler is invoked once for every write, create or rename event naming
// the watched input file; events are not debounced.
type Handler func(ctx context.Context)

// Watcher wraps an fsnotify.Watcher scoped to a single input file.
type Watcher struct {
	fsw     *fsnotify.Watcher
	path    string
	handler Handler
}

// New starts watching path's parent directory (fsnotify watches
// directories more reliably than bare files across editors that write via
// rename-into-place) and invokes handler on any event naming path itself.
func New(path string, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, path: filepath.Clean(path), handler: handler}, nil
}

// Run drains events until ctx is cancelled. Meant to be called in its own
// goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.handler(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("configwatch", "watch error: %v", err)
		}
	}
}
