package apidocs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// Watch reloads the document whenever its file is written, created or
// renamed into place. The parent directory is watched rather than the
// file so atomic-rename saves are seen. Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return xerrors.New("apidocs: nothing to watch for an embedded document")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "apidocs: create watcher")
	}
	defer func() { _ = w.Close() }()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return xerrors.Wrapf(err, "apidocs: watch %s", dir)
	}

	s.logger.Info(ctx, "api docs watcher starting", "path", s.path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, func() {
			if ctx.Err() != nil {
				return
			}
			_ = s.Reload(ctx)
		})
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "api docs watcher stopping", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Chmod) {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(ctx, "api docs watcher error", "err", err)
		}
	}
}
