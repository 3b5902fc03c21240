// Package logging wraps logrus with the same call shape the project has
// always used: leveled package-level helpers plus a chainable Logger that
// accumulates fields. It exists so the rest of the codebase never imports
// logrus directly, the way the teacher's internal/logger kept every caller
// off of the standard log package.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry, adding fields one WithField/WithFields call
// at a time without ever mutating the parent.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to out at the given level. Color is enabled
// automatically when out is a terminal; file-backed loggers get plain text.
func New(level logrus.Level, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewFile opens (or creates) a log file under dir named "<prefix>.log" and
// returns a Logger appending to it, mirroring the teacher's NewFileLogger.
func NewFile(level logrus.Level, dir, prefix string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(dir+"/"+prefix+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return New(level, f), nil
}

// WithField returns a derived Logger carrying an additional structured
// field, leaving the receiver untouched.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields is the multi-field form of WithField.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Fatal(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

// Default is the process-wide logger used by the package-level helpers
// below. The CLI mains build their own Loggers and leave it unchanged.
var Default = New(logrus.InfoLevel, os.Stderr)

func Debug(format string, args ...interface{}) { Default.Debug(format, args...) }
func Info(format string, args ...interface{})  { Default.Info(format, args...) }
func Warn(format string, args ...interface{})  { Default.Warn(format, args...) }
func Error(format string, args ...interface{}) { Default.Error(format, args...) }
func Fatal(format string, args ...interface{}) { Default.Fatal(format, args...) }

// ParseLevel exposes logrus's level parser so CLI flags ("debug", "info", …)
// can configure Default without callers importing logrus themselves.
func ParseLevel(s string) (logrus.Level, error) { return logrus.ParseLevel(s) }
