// Package logging builds the zerolog logger shared by the commands.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/csheth/ragchat/internal/config"
)

// New returns a logger at the configured level. A configured file wins and is
// rotated; otherwise console receives human-readable output, and a nil console
// discards everything (the terminal UI owns stdout/stderr).
func New(cfg config.LogConfig, console io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "parse log level %q", cfg.Level)
		}
		level = parsed
	}

	var out io.Writer
	switch {
	case cfg.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), errors.Wrap(err, "create log directory")
		}
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	case console != nil:
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}
	default:
		out = io.Discard
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}
