// Package logx provides structured key/value logging for all netwarden components.
package logx

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with a component field and alternating key/value arguments
type Logger struct {
	backend   *logrus.Logger
	component string
}

// NewLogger creates a logger for a component at the given level (trace|debug|info|warn|error)
func NewLogger(level, component string) *Logger {
	backend := logrus.New()
	backend.SetOutput(os.Stderr)
	backend.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	backend.SetLevel(parseLevel(level))

	return &Logger{
		backend:   backend,
		component: component,
	}
}

// SetLevel changes the log level at runtime
func (l *Logger) SetLevel(level string) {
	l.backend.SetLevel(parseLevel(level))
}

// WithComponent returns a logger that shares the backend but reports a different component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		backend:   l.backend,
		component: component,
	}
}

// Trace logs at trace level with alternating key/value pairs
func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Trace(msg)
}

// Debug logs at debug level with alternating key/value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}

// Info logs at info level with alternating key/value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Info(msg)
}

// Warn logs at warn level with alternating key/value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}

// Error logs at error level with alternating key/value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Error(msg)
}

func (l *Logger) entry(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	if l.component != "" {
		fields["component"] = l.component
	}

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}

	// Odd trailing argument is kept rather than dropped
	if len(keysAndValues)%2 == 1 {
		fields["arg"] = keysAndValues[len(keysAndValues)-1]
	}

	return l.backend.WithFields(fields)
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
