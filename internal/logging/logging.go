// Package logging builds the application's slog.Logger.
//
// Two output formats:
//   - "text": colored, human-friendly lines via tint, for terminals
//   - "json": one JSON object per line, for log collectors
//
// Levels: debug, info, warn, error (default: info).
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a logger writing to w at the given level and format.
// Unknown levels mean info; unknown formats mean text.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
