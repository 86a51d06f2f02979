package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. It defaults to info-level
// console output on stderr until Setup replaces it; components derive
// their own child loggers from it via Component.
var Logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Setup replaces the root logger. level is any of zerolog's level
// strings ("debug", "info", "warn", "error", ...); an empty level means
// info. Console output unless json is set. A nil out writes to stderr.
func Setup(level string, json bool, out io.Writer) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log: unknown level %q", level)
		}
		if parsed != zerolog.NoLevel {
			lvl = parsed
		}
	}

	if out == nil {
		out = os.Stderr
	}
	w := out
	if !json {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return nil
}

// Component derives a child logger tagged with a subsystem name, e.g.
// "producer", "stager", "consumer". Per-version context is added at the
// call site: logger.With().Stringer("to_version", v).
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
