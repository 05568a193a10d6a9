package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchLevel watches path for writes and calls onLevel with the freshly
// decoded logging.level whenever the file changes. A missing config file
// (the first-run case) makes adding the watch fail and WatchLevel returns
// that error; the caller treats it as non-fatal and runs without a watcher.
func WatchLevel(path string, logger *slog.Logger, onLevel func(level string)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed", "path", path, "error", err)
					continue
				}
				onLevel(cfg.Logging.Level)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
