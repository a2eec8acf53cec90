// Package zerolog adapts github.com/rs/zerolog to routequota.Logger.
package zerolog

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Logger writes routequota log lines through a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger wraps zl.
func NewLogger(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Component returns a child logger that tags every line with
// component=name, so tracker, scorer and resolver output can be told apart
// in one stream.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *Logger) Debug(msg string, fields ...routequota.Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...routequota.Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...routequota.Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...routequota.Field) { emit(l.zl.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []routequota.Field) {
	if ev == nil { // level disabled
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev.Str(f.Key, v)
		case int:
			ev.Int(f.Key, v)
		case float64:
			ev.Float64(f.Key, v)
		case bool:
			ev.Bool(f.Key, v)
		case time.Duration:
			ev.Dur(f.Key, v)
		case time.Time:
			ev.Time(f.Key, v)
		case error:
			ev.AnErr(f.Key, v)
		default:
			ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}
