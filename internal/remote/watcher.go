package remote

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes to a single file
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchFile calls onChange from a background goroutine every time path is
// written, created or replaced. The parent directory is watched so that
// editors which save by renaming are still noticed.
func WatchFile(path string, onChange func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w := &Watcher{watcher: fsWatcher, done: make(chan struct{})}
	go w.run(abs, onChange)
	return w, nil
}

func (w *Watcher) run(path string, onChange func()) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				zap.L().Debug("Definition changed on disk",
					zap.String("path", path),
					zap.String("op", event.Op.String()))
				onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zap.L().Warn("Definition watcher error", zap.String("path", path), zap.Error(err))
		}
	}
}

// Close stops watching and waits for the event loop to exit
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
