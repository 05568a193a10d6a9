// Package logging builds the daemon's structured logger: line-delimited
// JSON over a rotating file sink, with a runtime-adjustable level.
package logging

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Path  string
	Level string
}

// New builds an slog.Logger writing JSON lines to a lumberjack-rotated file
// at opts.Path, and returns the LevelVar backing it so callers can adjust
// verbosity at runtime without rebuilding the logger.
func New(opts Options) (*slog.Logger, *slog.LevelVar) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(opts.Level))

	writer := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    10, // MiB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: levelVar})
	return slog.New(handler), levelVar
}

// NewStderr builds a logger writing to stderr, used before the rotating
// file sink's directory is known to exist (e.g. startup failures).
func NewStderr(level string) *slog.Logger {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel adjusts levelVar, called from the config watcher on hot-reload.
func SetLevel(levelVar *slog.LevelVar, level string) {
	levelVar.Set(parseLevel(level))
}
