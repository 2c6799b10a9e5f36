// Package logger provides structured logging for blinkkv
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with blinkkv-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger
	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "blinkkv").
		Logger()

	// Add caller information if requested
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// Component returns a logger tagged with component, replacing the
// teacher's single DbLogger with one child logger per engine subsystem
// (btree, storage, engine).
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", component).
			Logger(),
	}
}

// LogOperation logs a top-level engine operation (insert/update/erase/
// select) with its duration, at debug on success and error on failure.
func (l *Logger) LogOperation(operation string, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("operation", operation).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("engine operation completed")
}

// Noop returns a logger that discards everything it is given, used as the
// default when a component isn't constructed with one explicitly
// (spec.md §9 "Global state": no package-level singleton logger — every
// component takes its logger by constructor injection instead).
func Noop() *Logger {
	return &Logger{zlog: zerolog.New(io.Discard)}
}
