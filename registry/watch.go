package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.ntppool.org/common/logger"
)

const debounceInterval = 100 * time.Millisecond

// Watch reloads the registry file at path whenever it changes and passes
// each result to fn. fn is not called when the file can't be decoded at
// all; the previous registry stays in effect. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, path string, fn func(*Registry, error)) error {
	log := logger.FromContext(ctx).WithGroup("registry-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry watch: %w", err)
	}
	defer watcher.Close()

	// editors and config management replace the file with a rename, so
	// watch the directory rather than the file itself
	dir, name := filepath.Dir(path), filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("registry watch %s: %w", dir, err)
	}
	log.InfoContext(ctx, "watching registry file", "dir", dir, "file", name)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		var debounceC <-chan time.Time
		if debounceTimer != nil {
			debounceC = debounceTimer.C
		}

		select {
		case <-ctx.Done():
			log.DebugContext(ctx, "registry watcher shutting down")
			return nil

		case <-debounceC:
			debounceTimer = nil
			reg, err := Load(path)
			if reg == nil {
				log.WarnContext(ctx, "could not reload registry, keeping previous", "err", err)
				continue
			}
			log.InfoContext(ctx, "registry reloaded", "endpoints", reg.Len())
			fn(reg, err)

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("registry watch: events channel closed")
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.DebugContext(ctx, "registry file changed", "event", event.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(debounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("registry watch: errors channel closed")
			}
			log.WarnContext(ctx, "file watcher error", "err", err)
		}
	}
}
