// Package logging builds the process logger. Callers log with key/value pairs and never
// pass passwords, tokens, or OTP codes.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON slog.Logger at info level, or a text logger at debug level when env is "development".
func New(env string) *slog.Logger {
	return newWithWriter(env, os.Stdout)
}

func newWithWriter(env string, w io.Writer) *slog.Logger {
	if env == "development" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Discard returns a logger that drops everything. Used by tests and optional dependencies.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
