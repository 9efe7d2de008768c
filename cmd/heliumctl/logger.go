package main

import (
	"log/slog"
	"os"

	"github.com/helium/carbon/heliumlog"
)

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := heliumlog.New(format, lvl, os.Stderr).With("app", "heliumctl")
	heliumlog.Set(l)
	return l
}
