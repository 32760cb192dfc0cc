package logger

import (
	"io"
	"log/slog"
	"os"
)

var Logger *slog.Logger

// Init initializes structured logging. Output goes to stdout and, when a
// logPath is given, is mirrored to that file so every run leaves a plain
// log artifact behind.
func Init(logPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w = io.MultiWriter(os.Stdout, f)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}
	Logger = slog.New(slog.NewJSONHandler(w, opts))
	Logger.Info("structured logging initialized", "level", level.String())
	return nil
}

// ForCollection returns a child logger namespaced to one collection, so
// per-collection runs stay attributable in a shared log.
func ForCollection(name string) *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger.With("collection", name)
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
