// Package logging provides the structured logger shared by every
// voipcore component, built on zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Field is a single structured key/value attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func Str(key, value string) Field       { return Field{Key: key, Value: value} }
func Int(key string, value int) Field    { return Field{Key: key, Value: value} }
func Err(err error) Field                { return Field{Key: "error", Value: err} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d} }

// Logger wraps a zerolog.Logger with the call_id/dialog_id/component
// fields that every voipcore subsystem tags its lines with.
type Logger struct {
	zl zerolog.Logger
}

// Config controls how a root Logger is constructed.
type Config struct {
	Level  zerolog.Level
	Pretty bool
	Output io.Writer
}

// DefaultConfig returns the ambient logging configuration: info level,
// JSON output to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel,
		Output: os.Stderr,
	}
}

// New builds a root Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).With().Timestamp().Logger().Level(cfg.Level)
	return &Logger{zl: zl}
}

// WithComponent returns a child logger tagging every line with
// component=name, matching the teacher's StructuredLogger.WithComponent
// pattern.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// WithCallID tags every line emitted by the returned logger with the
// given Call-ID, for correlating a dialog's log lines.
func (l *Logger) WithCallID(callID string) *Logger {
	return &Logger{zl: l.zl.With().Str("call_id", callID).Logger()}
}

func (l *Logger) event(ctx context.Context, ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case error:
			ev = ev.AnErr(f.Key, v)
		case time.Duration:
			ev = ev.Dur(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Trace(ctx context.Context, msg string, fields ...Field) {
	l.event(ctx, l.zl.Trace(), msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.event(ctx, l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.event(ctx, l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.event(ctx, l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.event(ctx, l.zl.Error(), msg, fields)
}

var defaultLogger = New(DefaultConfig())

// Default returns the process-wide root logger.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the process-wide root logger, e.g. for tests that
// want to capture output or raise the level.
func SetDefault(l *Logger) { defaultLogger = l }
