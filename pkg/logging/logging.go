// Package logging provides subsystem-tagged logging on top of log/slog.
//
// Call InitForCLI once at startup, then log with a subsystem identifier:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Discovery", "Fetched metadata for issuer=%s", issuer)
//
// Token and credential values must never be passed to any of these
// functions; log identifiers (client id, issuer, endpoint URLs) only.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// LogLevel defines the severity of a log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.Default())
}

// InitForCLI configures the package-level logger for command-line use,
// writing text-formatted entries at or above the given level.
func InitForCLI(level LogLevel, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	logger.Store(slog.New(handler))
}

// Logger returns the current package-level logger. Components that take
// a *slog.Logger option can use this as their default.
func Logger() *slog.Logger {
	return logger.Load()
}

// Debug logs a formatted debug message for the given subsystem.
func Debug(subsystem, format string, args ...any) {
	logger.Load().Debug(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Info logs a formatted informational message for the given subsystem.
func Info(subsystem, format string, args ...any) {
	logger.Load().Info(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Warn logs a formatted warning for the given subsystem.
func Warn(subsystem, format string, args ...any) {
	logger.Load().Warn(fmt.Sprintf(format, args...), "subsystem", subsystem)
}

// Error logs a formatted error for the given subsystem. err may be nil.
func Error(subsystem string, err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		logger.Load().Error(msg, "subsystem", subsystem, "error", err)
		return
	}
	logger.Load().Error(msg, "subsystem", subsystem)
}
