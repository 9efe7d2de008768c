// Package heliumlog provides the structured logger shared by the
// transaction, command, and heliummetrics packages. It is deliberately a
// thin global: a single atomic.Pointer[slog.Logger] any caller can read or
// replace.
package heliumlog

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger. A nil argument is ignored.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New builds a logger with the given format ("text" or "json") and level,
// writing to w (os.Stderr if w is nil).
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// ForSeq scopes the global logger to a single transaction's sequence
// number, so a read/write pair and its eventual decode error all carry the
// same "seq" field without every call site spelling it out.
func ForSeq(seq uint16) *slog.Logger { return L().With("seq", seq) }

// ForCommand scopes the global logger to a command name, matching the
// "command"/"status" field pair heliummetrics.RecordCommand already uses.
func ForCommand(name string) *slog.Logger { return L().With("command", name) }
