package app

import (
	"io"
	"log/slog"
)

// newLogger builds an isolated logger for one binary instance, so the
// global logger is never touched. Unknown level names fall back to info;
// the cli layer rejects typos before they get here.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
