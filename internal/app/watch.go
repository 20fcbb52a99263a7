// # internal/app/watch.go
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"blockscope/internal/history"
	"blockscope/internal/observability"
)

// Watcher re-checks files as they change. Events are debounced per path and
// recheck bursts are smoothed with a token bucket, so editor save storms do
// not trigger a pass per keystroke.
type Watcher struct {
	app       *App
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	limiter   *rate.Limiter

	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(a *App) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirGlobs, err := compileGlobs(a.Config.Exclude.Dirs)
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(a.Config.Exclude.Files)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		app:          a,
		fsWatcher:    fsw,
		debounce:     a.Config.Watch.Debounce,
		limiter:      rate.NewLimiter(rate.Limit(a.Config.Watch.RechecksPerSecond), a.Config.Watch.Burst),
		excludeDirs:  dirGlobs,
		excludeFiles: fileGlobs,
		pending:      make(map[string]time.Time),
	}, nil
}

// Watch registers every directory under the roots and processes events until
// the context is canceled.
func (w *Watcher) Watch(ctx context.Context, paths []string) error {
	for _, root := range paths {
		if err := w.watchRecursive(root); err != nil {
			return err
		}
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if matchAny(w.excludeDirs, filepath.Base(path)) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// New directories need their own watch registration.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !matchAny(w.excludeDirs, filepath.Base(event.Name)) {
			if err := w.watchRecursive(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !w.app.parser.IsSupportedPath(event.Name) {
		return
	}
	if matchAny(w.excludeFiles, filepath.Base(event.Name)) {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[event.Name] = time.Now()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.timer = nil
	w.pendingMu.Unlock()

	start := time.Now()
	checked, failed, found := 0, 0, 0
	for _, path := range paths {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		diags, err := w.app.CheckFile(ctx, path)
		if err != nil {
			slog.Warn("recheck failed", "path", path, "error", err)
			failed++
			continue
		}
		checked++
		found += len(diags)
		if len(diags) == 0 {
			slog.Info("recheck clean", "path", path)
			continue
		}
		for _, d := range diags {
			slog.Warn("scoping issue", "path", d.Unit, "line", d.Line, "message", d.Message)
		}
	}

	if w.app.history != nil && checked+failed > 0 {
		err := w.app.history.SaveRun(history.Run{
			ID:          uuid.NewString(),
			Timestamp:   start.UTC(),
			Files:       checked,
			FailedFiles: failed,
			Diagnostics: found,
			Duration:    time.Since(start),
		})
		if err != nil {
			slog.Warn("failed to record recheck history", "error", err)
		}
	}
}
