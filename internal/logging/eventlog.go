package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ClientEvent is one registration outcome: a publication/subscription
// add or release succeeding or failing. It mirrors the teacher's
// RequestLog shape — a flat, JSON-serializable record meant for an
// append-only audit trail rather than structured log aggregation.
type ClientEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Kind          string    `json:"kind"` // add-publication, add-exclusive-publication, add-subscription, release-publication, release-subscription
	Channel       string    `json:"channel,omitempty"`
	StreamID      int32     `json:"stream_id,omitempty"`
	CorrelationID int64     `json:"correlation_id"`
	RegistrationID int64    `json:"registration_id,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
}

// ClientEventLogger writes ClientEvent records to an optional file
// and/or the console, independent of the operational slog logger.
type ClientEventLogger struct {
	mu      sync.Mutex
	enabled bool
	console bool
	file    *os.File
}

// NewClientEventLogger builds a logger with console output enabled by
// default, matching the teacher's default Logger construction.
func NewClientEventLogger() *ClientEventLogger {
	return &ClientEventLogger{enabled: true, console: true}
}

// SetOutput directs JSON-encoded events to path in addition to any
// console output.
func (l *ClientEventLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole toggles human-readable console output.
func (l *ClientEventLogger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log records one event, timestamping it now.
func (l *ClientEventLogger) Log(event ClientEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	event.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !event.Success {
			status = "failed"
		}
		fmt.Fprintf(os.Stderr, "[registration] %s %s channel=%s stream=%d correlation=%d %dms\n",
			event.Kind, status, event.Channel, event.StreamID, event.CorrelationID, event.DurationMs)
		if event.Error != "" {
			fmt.Fprintf(os.Stderr, "[registration]   error: %s\n", event.Error)
		}
	}

	if l.file != nil {
		data, err := json.Marshal(event)
		if err == nil {
			l.file.Write(append(data, '\n'))
		}
	}
}

// Close releases the underlying file handle, if any.
func (l *ClientEventLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
