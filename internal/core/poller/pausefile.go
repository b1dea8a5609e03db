package poller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchPauseFile pauses polling while path exists and resumes it when the
// file is removed, so `rentcheck pause` in another terminal holds every
// running watcher. Only pauses it caused are undone. It blocks until ctx is
// done.
func (s *Supervisor) WatchPauseFile(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pause directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	held := false
	check := func() {
		exists := PauseFileExists(path)
		switch {
		case exists && !held:
			s.Pause()
		case !exists && held:
			s.Resume()
		}
		held = exists
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) == filepath.Clean(path) {
				check()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			s.logger.Warn("pause file watcher error", zap.Error(err))
		}
	}
}

// PauseFileExists reports whether the pause file is present.
func PauseFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
