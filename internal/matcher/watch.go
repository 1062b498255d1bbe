package matcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay lets editors finish writing before the catalog is re-read.
const reloadDelay = 100 * time.Millisecond

// WatchCatalog reloads the catalog at path whenever the file changes, until
// ctx is canceled. A catalog that fails to parse is logged and the previous
// catalog stays active. The file's directory is watched so that editors
// replacing the file by rename are followed.
func (m *Matcher) WatchCatalog(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("catalog watch %s: %w", filepath.Dir(abs), err)
	}
	m.log.Info("watching catalog", zap.String("path", abs))

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("catalog watcher error", zap.Error(err))

		case <-timer.C:
			c, err := LoadCatalog(abs)
			if err != nil {
				m.log.Warn("catalog reload failed, keeping previous", zap.Error(err))
				continue
			}
			m.SetCatalog(c)
			m.log.Info("catalog reloaded", zap.String("path", abs), zap.Strings("locales", c.Locales()))
		}
	}
}
