// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level string
	// Console selects human-readable output instead of JSON lines.
	Console bool
	// Tee receives a plain (no color) copy of every line, e.g. the web
	// log buffer.
	Tee io.Writer
}

var stdout io.Writer = os.Stdout

// Init builds the logger for app, installs it as the zerolog global and
// routes the standard library logger through it.
func Init(app string, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}
	if cfg.Tee != nil {
		tee := zerolog.ConsoleWriter{Out: cfg.Tee, TimeFormat: time.RFC3339, NoColor: true}
		out = zerolog.MultiLevelWriter(out, tee)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)
	return logger
}
