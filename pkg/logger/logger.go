package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-global logger. Packages call the level wrappers below
// so an uninitialized logger degrades to silence instead of a panic.
var Log *slog.Logger

// maxSinkSize caps a file sink before it is rotated aside on startup.
const maxSinkSize = 10 * 1024 * 1024 // 10MB

// Init initializes the global slog logger with a text handler at Info
// level. Sink and level can be overridden via RETROSPECT_LOG_SINK
// (e.g. "file:/path/to/log") and RETROSPECT_LOG_LEVEL.
func Init() error {
	return InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). An empty level falls back to
// the RETROSPECT_LOG_LEVEL environment variable, then to Info.
func InitWithLevel(level string) error {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("RETROSPECT_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	sink := os.Getenv("RETROSPECT_LOG_SINK")
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		// rotate an oversized sink aside before appending
		if fi, err := os.Stat(path); err == nil && fi.Size() > maxSinkSize {
			bak := path + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(path, bak)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
		return nil
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
	return nil
}

// Sync is a no-op for the slog handlers used here.
func Sync() {}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
