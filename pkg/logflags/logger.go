package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used by the debugger layers.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Fields are attached to every line a Logger writes.
type Fields map[string]interface{}

// newLogger, when set, replaces the logrus construction in makeLogger.
// fields and out may be nil.
var newLogger func(level logrus.Level, fields Fields, out io.Writer) Logger

// entryLogger adapts a logrus entry so that derived loggers keep
// satisfying Logger.
type entryLogger struct {
	*logrus.Entry
}

func (l entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{l.Entry.WithField(key, value)}
}

func (l entryLogger) WithFields(fields Fields) Logger {
	return entryLogger{l.Entry.WithFields(logrus.Fields(fields))}
}
