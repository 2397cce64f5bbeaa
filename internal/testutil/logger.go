package testutil

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

// Logger returns a slog logger that writes through t.Logf, so engine log
// output lands next to the test's own output and only shows on failure or
// with -v.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SilentLogger returns a logger that discards everything. Use it in tests
// that assert on log-adjacent behavior and would otherwise drown in output.
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
