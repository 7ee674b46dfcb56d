// Package logctl builds the structured loggers used by the worker pool.
package logctl

import (
	"log/slog"
	"os"
)

// New returns a text-handler slog.Logger tagged with component, the way
// each worker in the original implementation tagged its own logger with
// "worker-<id>".
func New(component string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", component)
}
