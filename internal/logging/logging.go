// Package logging provides the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog so call sites keep the Info/Error/Debug shape used
// throughout the services.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to stdout. Level is one of debug,
// info, warn, error; format is "text" or "json". Unknown values fall back
// to info/text.
func NewLogger(level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
