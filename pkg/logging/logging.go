// Package logging builds the process-wide slog.Logger, generalizing the
// per-command `slog.New(slog.NewJSONHandler(...))` setup duplicated across
// cmd/*/main.go into one constructor.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON-handler slog.Logger writing to stdout at the given
// level ("debug", "info", "warn", "error"; defaults to "info" on anything
// else).
func New(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
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
