// Package logging configures the process-wide zerolog logger. Every
// component takes a zerolog.Logger explicitly rather than reaching for a
// package-global, but cmd/server wires one logger built here through the
// whole tree.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger from a level string ("debug", "info", "warn",
// "error") and a format ("console" or "json"). An unknown level falls
// back to info; an unknown format falls back to json.
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if strings.ToLower(format) == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()
}
