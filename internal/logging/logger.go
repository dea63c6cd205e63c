// Package logging builds the slog loggers used by the dhcpcore daemons.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs and returns the process-wide logger. format is "json" or
// "text"; anything else falls back to JSON.
func Setup(level, format string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(output, opts)
	} else {
		h = slog.NewJSONHandler(output, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog.Level. Unknown names mean
// info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
