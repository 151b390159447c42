// Package logging wraps zerolog behind a small capability interface.
// Every component that logs takes a Logger at construction instead of
// importing zerolog directly, so the controller decides the sink once at
// startup.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging surface every component depends on.
// Key/value pairs follow zerolog's convention: alternating key, value.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
	With(component string) Logger
}

type zlog struct {
	logger zerolog.Logger
}

// New builds a Logger writing to w. If pretty is true, output goes through
// zerolog's console writer (development mode); otherwise it emits
// newline-delimited JSON suitable for log aggregation.
func New(w io.Writer, level zerolog.Level, pretty bool) Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return &zlog{logger: l}
}

// Default returns a JSON logger at info level writing to stderr.
func Default() Logger {
	return New(os.Stderr, zerolog.InfoLevel, false)
}

func (z *zlog) event(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func (z *zlog) Debug(msg string, kv ...any) { z.event(z.logger.Debug(), kv).Msg(msg) }
func (z *zlog) Info(msg string, kv ...any)  { z.event(z.logger.Info(), kv).Msg(msg) }
func (z *zlog) Warn(msg string, kv ...any)  { z.event(z.logger.Warn(), kv).Msg(msg) }

func (z *zlog) Error(msg string, err error, kv ...any) {
	z.event(z.logger.Error().Err(err), kv).Msg(msg)
}

func (z *zlog) With(component string) Logger {
	return &zlog{logger: z.logger.With().Str("component", component).Logger()}
}

type nopLogger struct{}

// Nop returns a Logger that discards everything, used where a caller omits
// a logger rather than requiring every constructor to nil-check.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)      {}
func (nopLogger) Info(string, ...any)       {}
func (nopLogger) Warn(string, ...any)       {}
func (nopLogger) Error(string, error, ...any) {}
func (nopLogger) With(string) Logger        { return nopLogger{} }
