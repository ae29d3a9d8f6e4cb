package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	entry  *logrus.Entry
}

var base = newBase(os.Stdout)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure sets the level ("debug", "info", "warn", "error") and format
// ("text" or "json") shared by every Logger.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return nil
}

// SetOutput redirects every Logger; tests use it to capture output.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		entry:  base.WithField("component", prefix),
	}
}

// With returns a child logger carrying the extra key-value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		prefix: l.prefix,
		entry:  l.entry.WithFields(fields(keysAndValues)),
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	return f
}

// Entry exposes the underlying logrus entry for libraries that take a
// printf-style logger (asynq.Config.Logger).
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}
