// Package log provides the leveled logger shared by tovs components.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	// LevelDebug level for detailed troubleshooting information
	LevelDebug Level = iota
	// LevelInfo level for general operational information
	LevelInfo
	// LevelWarn level for potentially harmful situations
	LevelWarn
	// LevelError level for error events that might still allow the application to continue
	LevelError
	// LevelFatal level for severe error events that will lead the application to abort
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String returns the string representation of the log level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", l)
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level
func ParseLevel(name string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "WARNING" {
		upper = "WARN"
	}
	for level, n := range levelNames {
		if n == upper {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger interface defines the methods for logging at different levels
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// Fatal logs a fatal-level message and then calls os.Exit(1)
	Fatal(msg string, args ...interface{})
	// WithFields returns a new logger with the given fields added to the context
	WithFields(fields map[string]interface{}) Logger
	// WithField returns a new logger with the given field added to the context
	WithField(key string, value interface{}) Logger
	GetLevel() Level
	SetLevel(level Level)
}

// StandardLogger writes one line per entry:
//
//	[2006-01-02 15:04:05.000] [LEVEL] k=v k=v message
//
// Fields are printed in key order.
type StandardLogger struct {
	mu     *sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
	exit   func(int)
}

// LoggerOption is a function that configures a StandardLogger
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		l.level = level
	}
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// WithInitialFields sets initial fields for the logger
func WithInitialFields(fields map[string]interface{}) LoggerOption {
	return func(l *StandardLogger) {
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

// NewStandardLogger creates a new StandardLogger with the given options
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		mu:     &sync.Mutex{},
		level:  LevelInfo,
		out:    os.Stderr,
		fields: make(map[string]interface{}),
		exit:   os.Exit,
	}

	for _, option := range options {
		option(logger)
	}

	return logger
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *StandardLogger {
	return NewStandardLogger(WithOutput(io.Discard), WithLevel(LevelFatal+1))
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}

	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString("] [")
	sb.WriteString(level.String())
	sb.WriteString("]")

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
		}
	}
	sb.WriteString(" ")
	sb.WriteString(formatted)
	sb.WriteString("\n")

	l.mu.Lock()
	io.WriteString(l.out, sb.String())
	l.mu.Unlock()

	if level == LevelFatal {
		l.exit(1)
	}
}

// Debug logs a debug-level message
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info-level message
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning-level message
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error-level message
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Fatal logs a fatal-level message and then calls os.Exit(1)
func (l *StandardLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args...)
}

// WithFields returns a new logger with the given fields added to the context.
// The child shares the parent's output lock.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	child := &StandardLogger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
		exit:   l.exit,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithField returns a new logger with the given field added to the context
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// GetLevel returns the current logging level
func (l *StandardLogger) GetLevel() Level {
	return l.level
}

// SetLevel sets the logging level
func (l *StandardLogger) SetLevel(level Level) {
	l.level = level
}

var defaultLogger = NewStandardLogger()

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger *StandardLogger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *StandardLogger {
	return defaultLogger
}

// Debug logs a debug-level message to the default logger
func Debug(msg string, args ...interface{}) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info-level message to the default logger
func Info(msg string, args ...interface{}) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning-level message to the default logger
func Warn(msg string, args ...interface{}) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error-level message to the default logger
func Error(msg string, args ...interface{}) {
	defaultLogger.Error(msg, args...)
}

// WithField returns a new logger with the given field added to the context
func WithField(key string, value interface{}) Logger {
	return defaultLogger.WithField(key, value)
}

// SetLevel sets the logging level of the default logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}
