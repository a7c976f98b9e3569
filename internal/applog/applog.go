// Package applog configures the process-wide structured logger.
package applog

import (
	"log/slog"
	"os"
)

// Options controls the logger's verbosity and destination.
type Options struct {
	Debug bool
}

// Init installs a text-handler slog.Logger as the process default and
// returns it, following the same pattern the CLI entrypoints use: a single
// logger built once at startup, passed down or reached via slog.Default().
func Init(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
