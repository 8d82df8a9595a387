// Package logging provides escrowd's structured logging, backed by
// charmbracelet/log behind the same Logger/Config/Level API the teacher's
// stdlib-backed logger exposed — callers never see the swap.
package logging

import (
	"io"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Logger wraps a charmbracelet/log logger with the level-gated,
// key-value-argument API the rest of escrowd is written against.
type Logger struct {
	inner *charmlog.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) charm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer
	// Prefix names the component emitting log lines, e.g. "escrowd" or a
	// session identifier, shown in every line's prefix field.
	Prefix string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	inner := charmlog.NewWithOptions(output, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          config.Prefix,
	})
	inner.SetLevel(config.Level.charm())
	return &Logger{inner: inner}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// With returns a child logger that prepends the given key-value pairs to
// every line it emits, e.g. logging.Default().With("tag", tag).
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{inner: l.inner.With(keyvals...)}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, args...)
}

// Printf-style logging, kept for call sites translated directly from the
// original C code's printf-based tracing.
func (l *Logger) Debugf(format string, args ...any) {
	l.inner.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.inner.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.inner.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.inner.Errorf(format, args...)
}

// Global convenience functions operating on the default logger.

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
