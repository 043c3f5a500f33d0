// Package logging holds the process-wide logger. By default nothing is
// logged below Warn; the CLI raises the level with -v flags.
package logging

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(New(io.Discard, 0))
}

// New returns a text logger writing to w. verbosity 0 logs warnings and
// errors, 1 adds info and 2 or more adds debug.
func New(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLogger replaces the process logger. Passing nil discards all output.
// Safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = New(io.Discard, 0)
	}
	loggerPtr.Store(l)
}

// Logger returns the current process logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
