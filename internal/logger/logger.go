// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"lanchat/internal/config"
)

// New returns a console logger in development and a JSON logger otherwise.
func New(cfg config.Config) zerolog.Logger {
	return newWithWriter(os.Stdout, cfg.IsDevelopment(), cfg.LogLevel)
}

func newWithWriter(w io.Writer, development bool, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if development {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
