// Package auditlog optionally records every registration outcome
// (add/remove publication, add/remove subscription) to Postgres for
// operators who want a durable trail beyond the in-process
// logging.ClientEventLogger. Off by default; enabled only when
// config.Config.AuditPostgresDSN is set. Writes are batched on a
// bounded channel and flushed by a background goroutine so a slow or
// unavailable database never blocks the conductor; a failed batch is
// logged and dropped. Grounded on the teacher's PostgresStore
// (schema-on-connect, $N placeholders, ON CONFLICT upserts) and its
// asyncqueue worker's channel-plus-ticker batching shape.
package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/aeronclient/internal/logging"
)

// Entry is one registration outcome to persist.
type Entry struct {
	Timestamp      time.Time
	ClientID       int64
	Kind           string // add-publication, add-exclusive-publication, add-subscription, release-publication, release-subscription
	Channel        string
	StreamID       int32
	CorrelationID  int64
	RegistrationID int64
	Success        bool
	Error          string
	DurationMs     int64
}

const (
	defaultQueueCapacity = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 2 * time.Second
)

// Log batches Entry writes onto a Postgres table.
type Log struct {
	pool          *pgxpool.Pool
	entries       chan Entry
	batchSize     int
	flushInterval time.Duration

	stopCh chan struct{}
	done   chan struct{}
}

// Open connects to dsn, ensures the audit table exists, and starts the
// background batching goroutine.
func Open(ctx context.Context, dsn string) (*Log, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create audit postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit postgres: %w", err)
	}

	l := &Log{
		pool:          pool,
		entries:       make(chan Entry, defaultQueueCapacity),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	if err := l.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	go l.loop()
	return l, nil
}

func (l *Log) ensureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS registration_audit (
			id BIGSERIAL PRIMARY KEY,
			client_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			channel TEXT NOT NULL,
			stream_id INTEGER NOT NULL,
			correlation_id BIGINT NOT NULL,
			registration_id BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_registration_audit_client_time
		ON registration_audit(client_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("ensure audit index: %w", err)
	}
	return nil
}

// Record enqueues an entry. Never blocks the caller past the channel
// buffer: if the queue is full the entry is dropped and logged, since
// an audit trail must never slow down the registration path it is
// observing.
func (l *Log) Record(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case l.entries <- entry:
	default:
		logging.Op().Warn("audit log queue full, dropping entry", "kind", entry.Kind, "channel", entry.Channel)
	}
}

func (l *Log) loop() {
	defer close(l.done)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, l.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.writeBatch(batch); err != nil {
			logging.Op().Warn("audit log batch write failed", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stopCh:
			flush()
			return
		case e := <-l.entries:
			batch = append(batch, e)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Log) writeBatch(batch []Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO registration_audit
				(client_id, kind, channel, stream_id, correlation_id, registration_id, success, error_message, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.ClientID, e.Kind, e.Channel, e.StreamID, e.CorrelationID, e.RegistrationID, e.Success, e.Error, e.DurationMs, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// Close stops the background flush loop, draining any pending batch,
// and closes the connection pool.
func (l *Log) Close() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
		<-l.done
	}
	l.pool.Close()
}
