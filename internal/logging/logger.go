// Package logging builds the structured logger shared by every component,
// ported from Tim275-oms's common/logger package.
package logging

import (
	"log/slog"
	"os"
)

// New creates a structured JSON logger bound to service, with its level
// controlled by LOG_LEVEL (DEBUG/INFO/WARN/ERROR, default INFO).
func New(service string) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("service", service))
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
