package logger

import (
	"log/slog"
	"os"
)

// New returns JSON logger on stderr; stdout stays free for command output.
// LOG_LEVEL overrides level (default info).
func New(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			lvl = parsed
		}
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

// Component tags logger output with the subsystem name.
func Component(lg *slog.Logger, name string) *slog.Logger {
	if lg == nil {
		lg = slog.Default()
	}
	return lg.With("component", name)
}
