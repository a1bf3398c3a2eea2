// Package logging provides the two loggers the bootstrap core uses:
// Op(), a structured slog logger for infrastructure/daemon-style
// messages (handshake progress, conductor lifecycle, driver timeouts),
// and ClientEventLogger, a per-event log of registration outcomes aimed
// at operators auditing what a client registered and when. Both are
// adapted from the teacher's split between its atomic.Pointer[slog.Logger]
// operational logger and its per-invocation RequestLog.
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	opLogger.Store(slog.New(handler))
}

// Op returns the operational logger used for handshake, conductor, and
// agent lifecycle messages.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetOutput replaces the operational logger's handler. The new handler
// filters by its own options; the level set through SetLevel does not
// apply to it.
func SetOutput(handler slog.Handler) {
	opLogger.Store(slog.New(handler))
}

// SetLevel changes the operational logger's minimum level.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the level from a config/CLI string, defaulting
// to info for an unrecognized value.
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
