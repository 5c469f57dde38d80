package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing PDFs
	SkipHidden  bool          // ignore dot files and dot directories
	Debounce    time.Duration // coalesce rapid create/write bursts per path
	Logger      *slog.Logger
}

// StartWatcher emits the paths of new or changed PDFs under cfg.Roots until
// ctx is cancelled. Both channels are closed when the watcher stops.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("ingest.watch.add_failed", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("ingest.watch.started", "roots", cfg.Roots, "initial", len(initial))

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		var (
			mu      sync.Mutex
			pending = map[string]*time.Timer{}
			timers  sync.WaitGroup
		)
		defer func() {
			mu.Lock()
			for p, t := range pending {
				if t.Stop() {
					timers.Done()
				}
				delete(pending, p)
			}
			mu.Unlock()
			timers.Wait()
			_ = w.Close()
			close(evCh)
			close(errCh)
			logger.Info("ingest.watch.stopped")
		}()

		emit := func(path string) {
			select {
			case evCh <- path:
			case <-ctx.Done():
			}
		}

		for _, p := range initial {
			emit(p)
		}

		schedule := func(path string) {
			if cfg.Debounce <= 0 {
				emit(path)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if t, ok := pending[path]; ok && t.Stop() {
				timers.Done()
			}
			timers.Add(1)
			pending[path] = time.AfterFunc(cfg.Debounce, func() {
				defer timers.Done()
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
				emit(path)
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				if e.Has(fsnotify.Create) {
					// New directories are watched too; adding a file fails and is ignored.
					_ = w.Add(e.Name)
				}
				if AllowedExt(filepath.Ext(e.Name)) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					logger.Debug("ingest.watch.event", "path", e.Name, "op", e.Op.String())
					schedule(e.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
