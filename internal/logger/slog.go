package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/phsym/console-slog"
)

// Options configures New.
type Options struct {
	Level Level
	// Format is "json" or "console". Empty picks console when ENV=development.
	Format    string
	AddSource bool
	Output    io.Writer
}

type slogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// New creates a slog backed logger.
func New(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := &slog.LevelVar{}
	level.Set(toSlogLevel(opts.Level))

	format := opts.Format
	if format == "" && os.Getenv("ENV") == "development" {
		format = "console"
	}

	var handler slog.Handler
	if format == "console" {
		handler = console.NewHandler(out, &console.HandlerOptions{
			AddSource: opts.AddSource,
			Level:     level,
		})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource: opts.AddSource,
			Level:     level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Key = "ts"
				}
				return a
			},
		})
	}

	return &slogLogger{logger: slog.New(handler), level: level}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return New(Options{Level: ErrorLevel + 1, Output: io.Discard, Format: "json"})
}

func (l *slogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues...)
}

func (l *slogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues...)
}

func (l *slogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues...)
}

func (l *slogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues...)
}

func (l *slogLogger) With(keysAndValues ...any) Logger {
	return &slogLogger{
		logger: l.logger.With(keysAndValues...),
		level:  l.level,
	}
}

func (l *slogLogger) Level() Level {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	}
	return ErrorLevel
}

func (l *slogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called directly by an exported method: it skips a fixed
// number of frames to report the caller's source position.
func (l *slogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, log, exported method]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	}
	if level > ErrorLevel {
		return slog.LevelError + 4
	}
	return slog.LevelDebug
}
