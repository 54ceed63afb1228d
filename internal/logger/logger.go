// Package logger provides the logging facility for the device-manager
// application.
//
// The package exposes a small printf-style API (Debug, Info, Warn, Error)
// backed by log/slog. The default handler writes colorized text via tint;
// a JSON handler can be selected for machine-readable output in production
// deployments.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

var (
	level   = new(slog.LevelVar)
	backend = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
)

// Init configures the global logger.
//
// levelName is one of "debug", "info", "warn", "error" (defaults to "info"
// for unrecognized values). format is "text" or "json".
func Init(levelName, format string) {
	level.Set(ParseLevel(levelName))

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}

	backend = slog.New(handler)
	slog.SetDefault(backend)
}

// InitWriter is like Init but writes to w. Used by tests to capture output.
func InitWriter(w io.Writer, levelName, format string) {
	level.Set(ParseLevel(levelName))

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	backend = slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// SetLevel changes the minimum level at runtime. Used by configuration
// hot reload.
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...any) {
	log(slog.LevelDebug, format, args...)
}

// Info logs a formatted message at info level.
func Info(format string, args ...any) {
	log(slog.LevelInfo, format, args...)
}

// Warn logs a formatted message at warn level.
func Warn(format string, args ...any) {
	log(slog.LevelWarn, format, args...)
}

// Error logs a formatted message at error level.
func Error(format string, args ...any) {
	log(slog.LevelError, format, args...)
}

func log(l slog.Level, format string, args ...any) {
	if !backend.Enabled(context.Background(), l) {
		return
	}
	backend.Log(context.Background(), l, fmt.Sprintf(format, args...))
}
