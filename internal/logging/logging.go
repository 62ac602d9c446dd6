package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup creates a configured *slog.Logger, sets it as the default, and returns it.
// The level parameter accepts: "debug", "info", "warn", "error" (case-insensitive).
// Format is "text" (default), "json", or "pretty" for colored terminal output.
func Setup(level, format string) *slog.Logger {
	logger := slog.New(NewHandler(os.Stderr, level, format))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	lvl := ParseLevel(level)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "pretty":
		return tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
}

// ParseLevel defaults to info if the level string is unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
