// Package logging wraps zerolog with barrow-specific conventions: every
// component gets a logger tagged with its name, and the process-wide level
// and format are set once at startup from internal/config.
//
// What: New returns a component-scoped *zerolog.Logger; Init sets the
// global level/writer once, at process startup.
// How: Mirrors the source's own structured-logging wrapper pattern (a thin
// Config + New(cfg) over zerolog.New(...).With().Timestamp()...), rather
// than introducing a second logging facade: every barrow component calls
// logging.New("component-name") and gets a zerolog.Logger back, so callers
// keep using zerolog's normal chained-event API directly.
// Why: A single Init call controls verbosity and console-vs-JSON output
// for the whole process (REPL and any future maintenance workers alike)
// without every package needing its own level-parsing logic.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the process-wide logging setup.
type Config struct {
	Level  string // debug, info, warn, error; defaults to info.
	Pretty bool   // console-writer formatting instead of JSON, for interactive use.
	Output io.Writer
}

// Init sets the global zerolog level and default logger per cfg. Safe to
// call once at process startup (cmd/repl's main, typically).
func Init(cfg Config) {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// New returns a logger tagged with component, derived from the global
// default logger (so it picks up whatever Init configured).
func New(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
