package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide root logger and sets the global level.
// Production emits plain JSON on stderr; anywhere else gets the
// console writer at debug level.
func New(environment string) zerolog.Logger {
	var out io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if environment != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	return zerolog.New(out).With().
		Timestamp().
		Str("env", environment).
		Logger()
}

// Component derives a sublogger tagged with the owning component, so
// every subsystem labels its lines under the same key.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}
