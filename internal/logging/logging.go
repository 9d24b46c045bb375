package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Configure installs the process-wide default logger and returns it.
// format is "text" or "json"; unknown levels fall back to info.
func Configure(lvl, format string) *slog.Logger {
	return ConfigureTo(os.Stdout, lvl, format)
}

// ConfigureTo is Configure with an explicit destination.
func ConfigureTo(w io.Writer, lvl, format string) *slog.Logger {
	SetLevel(lvl)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the logger built by Configure.
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
