// Package testlog provides slog loggers for tests.
package testlog

import (
	"log/slog"
	"testing"
)

// writer adapts testing.T logging to io.Writer.
type writer struct {
	t *testing.T
}

func (w writer) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// New returns a debug-level logger that writes through t.Log, so test
// output stays attached to the test that produced it.
func New(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(writer{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
