package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level represents the logging level
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger wraps slog.Logger with component context for governor subsystems
type Logger struct {
	*slog.Logger
	component string
}

// New creates a new structured JSON logger for a governor component
func New(component string, level Level) *Logger {
	return NewWithWriter(component, level, os.Stdout)
}

// NewWithWriter creates a logger writing to the given writer (used in tests)
func NewWithWriter(component string, level Level, w io.Writer) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevel,
	})

	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// Discard returns a logger that drops all output (used in tests)
func Discard(component string) *Logger {
	return NewWithWriter(component, LevelError, io.Discard)
}

// WithComponent creates a logger scoped to a sub-component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// WithUser creates a logger with user context
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("user_id", userID),
		component: l.component,
	}
}

// Debug logs a debug message with component context
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs an info message with component context
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Warn logs a warning message with component context
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs an error message with component context
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{"component", l.component}, args...)...)
}

// LogRequestOutcome logs a terminal request outcome
func (l *Logger) LogRequestOutcome(requestID, userID, model, status string, durationMs int64) {
	l.Info("request finished",
		"request_id", requestID,
		"user_id", userID,
		"model", model,
		"status", status,
		"duration_ms", durationMs)
}

// LogError logs error events with operation context
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := append([]any{"operation", operation, "error", err.Error()}, context...)
	l.Error("operation failed", args...)
}
