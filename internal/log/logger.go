// Package log owns the process-wide structured logger and the field
// conventions the rest of the engine attaches: component, addon, cycle.
package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global JSON logger. Unknown levels fall back to INFO.
func Setup(level string) {
	once.Do(func() {
		var l slog.Level
		switch strings.ToUpper(level) {
		case "DEBUG":
			l = slog.LevelDebug
		case "WARN":
			l = slog.LevelWarn
		case "ERROR":
			l = slog.LevelError
		default:
			l = slog.LevelInfo
		}

		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
		slog.SetDefault(logger)
	})
}

// Get returns the configured logger, initializing at INFO if Setup has not
// run yet.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO")
	}
	return logger
}

// WithComponent returns a logger tagged with the owning component.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithAddon tags parent with the addon an entry belongs to.
func WithAddon(parent *slog.Logger, id string) *slog.Logger {
	return parent.With(slog.String("addon", id))
}

// WithCycle tags parent with a request cycle's delivery-slot id, correlating
// every entry one dispatch emits.
func WithCycle(parent *slog.Logger, id int64) *slog.Logger {
	return parent.With(slog.Int64("cycle", id))
}
