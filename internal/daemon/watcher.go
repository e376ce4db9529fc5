package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcherIgnoredDirs mirrors internal/sync's ignore list: directories a
// repo watcher should never descend into or wake a tick for.
var watcherIgnoredDirs = map[string]bool{
	".git": true, ".llmc": true, "node_modules": true, "vendor": true,
	".venv": true, "__pycache__": true, "dist": true, "build": true,
}

// repoWatcher wakes the daemon loop on filesystem activity, debouncing
// bursts of events into a single wake signal. Grounded on the teacher's
// internal/core/mangle_watcher.go: an fsnotify.Watcher plus a
// debounceMap drained by a periodic ticker, generalized here from
// watching one directory of .mg files to an entire repository tree.
type repoWatcher struct {
	watcher     *fsnotify.Watcher
	repoPath    string
	logger      *zap.Logger
	mu          sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration
	wakeCh      chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func newRepoWatcher(repoPath string, logger *zap.Logger) (*repoWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	rw := &repoWatcher{
		watcher:     w,
		repoPath:    repoPath,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		wakeCh:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if err := rw.addTree(repoPath); err != nil {
		w.Close()
		return nil, err
	}
	return rw, nil
}

// addTree registers every non-ignored directory under root with the
// underlying watcher. fsnotify has no recursive mode, so each directory
// needs its own Add call.
func (rw *repoWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree is skipped, not fatal to watching the rest
		}
		if !d.IsDir() {
			return nil
		}
		if watcherIgnoredDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		if addErr := rw.watcher.Add(path); addErr != nil {
			rw.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(addErr))
		}
		return nil
	})
}

func (rw *repoWatcher) start(ctx context.Context) {
	go rw.run(ctx)
}

func (rw *repoWatcher) run(ctx context.Context) {
	defer close(rw.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handleEvent(event)
		case _, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			rw.flushDebounced()
		}
	}
}

func (rw *repoWatcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if watcherIgnoredDirs[base] {
		return
	}
	rw.mu.Lock()
	rw.debounceMap[event.Name] = time.Now()
	rw.mu.Unlock()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = rw.watcher.Add(event.Name)
		}
	}
}

func (rw *repoWatcher) flushDebounced() {
	rw.mu.Lock()
	now := time.Now()
	settled := false
	for path, t := range rw.debounceMap {
		if now.Sub(t) >= rw.debounceDur {
			settled = true
			delete(rw.debounceMap, path)
		}
	}
	rw.mu.Unlock()

	if settled {
		select {
		case rw.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (rw *repoWatcher) stop() {
	close(rw.stopCh)
	<-rw.doneCh
	rw.watcher.Close()
}
