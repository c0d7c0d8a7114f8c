// Package logging configures the process-wide structured logger used by
// every component, following the teacher's monitoring.NewLogger shape.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the logger's minimum level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text, pretty
}

// New creates a structured logger: JSON by default, a ConsoleWriter in
// "pretty" mode, with a timestamp, caller, and a fixed "service" field.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	var level zerolog.Level
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "graphserver").
		Logger()
}

// Component returns a child logger tagged with a "component" field, the
// way each subsystem (transport, kafka bridge, nats bridge, engine)
// identifies itself in the shared log stream.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// InitGlobal initializes the package-level zerolog/log logger. Call once
// at process startup so code that uses the bare zerolog/log package
// (third-party libraries, panics during init) also gets the same
// format/level.
func InitGlobal(cfg Config) {
	log.Logger = New(cfg)
}

// Error logs err with full context and optional key/value fields.
func Error(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Panic logs a recovered panic with a stack trace. Intended for use in a
// deferred recover() block.
func Panic(logger zerolog.Logger, panicValue any, msg string, fields map[string]any) {
	event := logger.Error().
		Interface("panic_value", panicValue).
		Str("stack_trace", string(debug.Stack()))
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
