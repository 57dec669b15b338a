// Package logging sets up the supervisor's operational log stream: structured
// zerolog output to stderr and, when a log file path is configured, a
// size-rotated copy via lumberjack. This is diagnostics for "is the
// supervisor itself healthy" — a different stream from internal/progresslog's
// progress.txt audit trail, which is plain text and never rotated (§4.G/§9).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Init.
type Options struct {
	Verbose bool
	Quiet   bool
	LogFile string // empty disables file rotation
}

// Init builds a zerolog.Logger writing to stderr (console format on a TTY,
// JSON otherwise) and, when Options.LogFile is set, additionally through a
// rotating lumberjack writer.
func Init(opts Options) zerolog.Logger {
	level := selectLevel(opts.Verbose, opts.Quiet)
	console := selectOutput()

	var writer io.Writer = console
	if opts.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(console, lj)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func selectOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return os.Stderr
}
