package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/core"
)

// DefaultWatchDebounce is how long the watcher waits for a burst of changes to settle
const DefaultWatchDebounce = 250 * time.Millisecond

// WatchDefinitions rescans the definitions directory whenever something
// below it changes, until ctx is done. A burst of changes within debounce
// causes a single rescan.
func (s *Server) WatchDefinitions(ctx context.Context, debounce time.Duration) error {
	s.mu.RLock()
	dir := s.config.DefinitionsDir
	s.mu.RUnlock()

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create definitions watcher: %w", err)
	}

	if err := fsWatcher.Add(dir); err != nil {
		core.LogDeferredError(fsWatcher.Close)
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	addSubdirectories(fsWatcher, dir)

	zap.L().Info("Watching definitions", zap.String("directory", dir))

	go func() {
		defer core.LogDeferredError(fsWatcher.Close)

		var rescan <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						if addErr := fsWatcher.Add(event.Name); addErr != nil {
							zap.L().Warn("Failed to watch new definition directory",
								zap.String("path", event.Name), zap.Error(addErr))
						}
					}
				}
				rescan = time.After(debounce)
			case watchErr, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				zap.L().Warn("Definitions watcher error", zap.Error(watchErr))
			case <-rescan:
				rescan = nil
				zap.L().Info("Definitions changed, rescanning", zap.String("directory", dir))
				s.rebuildServer()
			}
		}
	}()

	return nil
}

// addSubdirectories watches each definition directory directly below dir
func addSubdirectories(fsWatcher *fsnotify.Watcher, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		zap.L().Warn("Failed to list definitions directory", zap.String("directory", dir), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := fsWatcher.Add(path); err != nil {
			zap.L().Warn("Failed to watch definition directory", zap.String("path", path), zap.Error(err))
		}
	}
}
