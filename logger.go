package meshgo

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with mesh-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRank adds the process rank to the logger; in SPMD logs the rank field
// is what tells interleaved lines apart.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithCycle adds the modification cycle count to the logger.
func (l *Logger) WithCycle(cycle uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("cycle", cycle),
	}
}

// LogModification logs a completed (or failed) modification cycle. Attach
// the cycle count with WithCycle.
func (l *Logger) LogModification(duration time.Duration, err error) {
	if err != nil {
		l.Error("modification cycle failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.Debug("modification cycle completed",
			"duration", duration,
		)
	}
}

// engineLogger adapts Logger to the narrow printf-style interface the engine
// logs through.
type engineLogger struct {
	l *Logger
}

func (a engineLogger) Debugf(format string, args ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, args...))
}

func (a engineLogger) Infof(format string, args ...interface{}) {
	a.l.Info(fmt.Sprintf(format, args...))
}

func (a engineLogger) Errorf(format string, args ...interface{}) {
	a.l.Error(fmt.Sprintf(format, args...))
}
