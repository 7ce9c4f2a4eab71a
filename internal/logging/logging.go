package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns the process logger. Development gets human readable console
// output; everything else gets JSON lines on stdout.
func New(env, service string) zerolog.Logger {
	return newWithWriter(os.Stdout, env, service)
}

func newWithWriter(w io.Writer, env, service string) zerolog.Logger {
	out := w
	level := zerolog.InfoLevel
	if env == "dev" || env == "development" {
		out = zerolog.ConsoleWriter{Out: w}
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
