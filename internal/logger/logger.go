// Package logger is the structured logger used by every bus worker.
//
// The Logger interface takes key-value pairs after the message:
//
//	log.Warn("task failed", "component", "meter0", "err", err)
//
// The default implementation is backed by log/slog.
package logger

import (
	"fmt"
	"strings"
)

// Level is the logging severity.
type Level int8

const (
	// DebugLevel carries per-task timings and is usually disabled in production.
	DebugLevel Level = iota - 1
	// InfoLevel is the default.
	InfoLevel
	// WarnLevel reports failing devices and slow cycles.
	WarnLevel
	// ErrorLevel reports problems that need attention.
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("logger: unknown level %q", s)
}

// Logger defines the logging interface used throughout the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With creates a child logger carrying the given key-values.
	// The child shares the level of its parent.
	With(keysAndValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}
