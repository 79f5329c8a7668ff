// Package logger provides structured logging for the data-access engine.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with engine-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// New creates a structured logger.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "rdrstore").
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// DbLogger returns a logger for operations on one entity.
func (l *Logger) DbLogger(entity, operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "dao").
			Str("entity", entity).
			Str("operation", operation).
			Logger(),
	}
}

// LogDbOperation logs a completed storage operation.
func (l *Logger) LogDbOperation(duration time.Duration, recordCount int, err error) {
	if err != nil {
		l.zlog.Error().
			Dur("duration_ms", duration).
			Err(err).
			Msg("Database operation failed")
		return
	}
	l.zlog.Debug().
		Dur("duration_ms", duration).
		Int("record_count", recordCount).
		Msg("Database operation completed")
}
