// Package logging provides the thin Logger abstraction the rest of the
// core logs through, backed by logrus — mirroring the shape of the
// teacher's own logging package (a small interface plus a standard,
// logrus-backed implementation and a no-op implementation for tests),
// generalized from OPA's request-tracing fields to the executor's own
// per-transaction-attempt fields (spec.md's ambient logging expansion).
package logging

import (
	"github.com/sirupsen/logrus"
)

// Level is the severity of a single log call.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

// Logger is the interface the executor, planner and KV backends log
// through. Fields attaches structured key/value pairs to the next
// message, the same pattern logrus.Entry itself uses.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	WithFields(fields map[string]interface{}) Logger
	GetLevel() Level
	SetLevel(Level)
}

// StandardLogger is the default, logrus-backed Logger implementation.
type StandardLogger struct {
	entry *logrus.Entry
}

// New returns a StandardLogger writing to logrus's standard logger.
func New() *StandardLogger {
	return &StandardLogger{entry: logrus.NewEntry(logrus.StandardLogger())}
}

func (l *StandardLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *StandardLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *StandardLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *StandardLogger) Error(msg string) { l.entry.Error(msg) }

func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	return &StandardLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *StandardLogger) GetLevel() Level {
	return fromLogrusLevel(l.entry.Logger.GetLevel())
}

func (l *StandardLogger) SetLevel(lvl Level) {
	l.entry.Logger.SetLevel(toLogrusLevel(lvl))
}

func toLogrusLevel(l Level) logrus.Level {
	switch l {
	case Error:
		return logrus.ErrorLevel
	case Warn:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	case Debug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrusLevel(l logrus.Level) Level {
	switch l {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return Error
	case logrus.WarnLevel:
		return Warn
	case logrus.DebugLevel, logrus.TraceLevel:
		return Debug
	default:
		return Info
	}
}

// NoOpLogger discards every message, for use in tests that don't want
// log output cluttering failures.
type NoOpLogger struct{ level Level }

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string) {}
func (*NoOpLogger) Info(string)  {}
func (*NoOpLogger) Warn(string)  {}
func (*NoOpLogger) Error(string) {}
func (l *NoOpLogger) WithFields(map[string]interface{}) Logger { return l }
func (l *NoOpLogger) GetLevel() Level                           { return l.level }
func (l *NoOpLogger) SetLevel(lvl Level)                        { l.level = lvl }
