// Package watch reports files dropped into a directory once they stop
// changing.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pfinance-dev/pfinance/internal/logger"
)

// Watcher debounces create and write events on one directory.
type Watcher struct {
	dir    string
	settle time.Duration
	accept func(name string) bool
	fsw    *fsnotify.Watcher
}

// New watches dir. A file is reported once no event has touched it for
// settle. accept filters by base name; nil accepts everything.
func New(dir string, settle time.Duration, accept func(name string) bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	return &Watcher{dir: dir, settle: settle, accept: accept, fsw: fsw}, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run sends the path of every settled file to out until ctx is done or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	log := logger.FromContext(ctx).With().Str("dir", w.dir).Logger()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.accept(filepath.Base(ev.Name)) {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) < w.settle {
					continue
				}
				delete(pending, path)
				log.Debug().Str("file", filepath.Base(path)).Msg("file settled")
				select {
				case out <- path:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}
