package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/indexsync/indexsync/internal/pathvalidate"
	"github.com/indexsync/indexsync/internal/reconcile"
)

// Watcher keeps a root reconciled continuously: it watches the
// filesystem for changes and, on each debounced batch, re-invokes
// engine.ProcessPaths over the affected directories. Adapted from
// internal/watcher.HybridWatcher, repointed at a reconciliation engine
// instead of an outward event channel.
//
// Non-goal #1 (no rename/move detection) still holds here: a rename
// surfaces as a rename event on the old path and a create event on the
// new one, and each only triggers a reconcile of the containing
// directory, so process_paths sees a disappeared entry and a new one,
// as in a one-shot reconcile.
type Watcher struct {
	engine    *reconcile.Engine
	validator *pathvalidate.Validator
	root      string

	fsWatcher   *fsnotify.Watcher
	pollWatcher *pollingWatcher
	useFsnotify bool

	debouncer *debouncer
	opts      Options

	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool
}

// New builds a Watcher over root, reconciling through engine. Attempts
// fsnotify first, falling back to polling if it cannot be initialized
// (inotify exhausted, filesystem without native notification support).
func New(engine *reconcile.Engine, validator *pathvalidate.Validator, root string, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute root: %w", err)
	}

	w := &Watcher{
		engine:    engine,
		validator: validator,
		root:      absRoot,
		debouncer: newDebouncer(opts.DebounceWindow),
		opts:      opts,
		stopCh:    make(chan struct{}),
	}

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	} else {
		w.useFsnotify = false
		w.pollWatcher = newPollingWatcher(opts.PollInterval)
	}

	return w, nil
}

// Run watches the root and reconciles affected directories until ctx is
// cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	go w.forwardDebouncedBatches(ctx)

	if w.useFsnotify {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.debouncer.Add(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				slog.Warn("polling watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return w.pollWatcher.Start(ctx, w.root)
}

func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	case event.Op&fsnotify.Chmod != 0:
		return
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: relPath, Operation: op, IsDir: isDir})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsWatcher.Add(path)
	})
}

// forwardDebouncedBatches turns each debounced event batch into a
// reconcile pass over the directories the batch touched.
func (w *Watcher) forwardDebouncedBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.reconcileBatch(ctx, events)
		}
	}
}

// reconcileBatch collapses a batch of events down to the set of
// containing directories and runs one process_paths call over them.
// A directory-typed create/modify event reconciles the directory
// itself; a file-typed event reconciles its parent directory. Deletes
// are included the same way: process_paths re-reads the parent and
// checks C1/C2 pick up the absence.
func (w *Watcher) reconcileBatch(ctx context.Context, events []FileEvent) {
	dirSet := make(map[string]struct{}, len(events))
	for _, ev := range events {
		abs := filepath.Join(w.root, ev.Path)
		target := abs
		if !ev.IsDir {
			target = filepath.Dir(abs)
		}
		dirSet[target] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}

	ok, stats, err := w.engine.ProcessPaths(ctx, w.validator, dirs)
	if err != nil {
		slog.Error("reconcile pass aborted", slog.String("error", err.Error()))
		return
	}
	if !ok {
		slog.Warn("reconcile pass skipped invalid path in batch")
	}
	slog.Debug("reconciled batch",
		slog.Int("dirs", len(dirs)),
		slog.Int("new", stats.New),
		slog.Int("updated", stats.Updated),
		slog.Int("errors", stats.Errors))
}

// Stop stops the watcher and releases its resources. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()

	if w.useFsnotify && w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	return nil
}
