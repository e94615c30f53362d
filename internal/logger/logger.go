// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level and output format
type Options struct {
	Service string
	Level   string // zerolog level name; unknown values fall back to info
	Dev     bool   // console writer with caller info
	Out     io.Writer
}

// Setup replaces log.Logger and returns it for components that take a
// zerolog.Logger explicitly
func Setup(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var l zerolog.Logger
	if opts.Dev {
		l = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().Timestamp().Caller().Logger()
	} else {
		l = zerolog.New(out).With().Timestamp().Logger()
	}
	if opts.Service != "" {
		l = l.With().Str("service", opts.Service).Logger()
	}

	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
