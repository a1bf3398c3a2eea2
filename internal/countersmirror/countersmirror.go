// Package countersmirror optionally publishes a snapshot of the
// driver's counters into Redis on a fixed interval, so external
// dashboards can observe this client's counters without attaching to
// the CnC file directly. Off by default; enabled only when
// config.Config.CountersMirrorRedisAddr is set. Adapted from the
// teacher's RedisCache wrapper-around-a-client idiom.
package countersmirror

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/aeronclient/internal/counters"
	"github.com/oriys/aeronclient/internal/logging"
)

// Config configures the mirror.
type Config struct {
	Addr     string
	Password string
	DB       int
	ClientID int64
	Interval time.Duration // default 10s, applied by New if zero
	TTL      time.Duration // default Interval + 5s, applied by New if zero
}

const defaultInterval = 10 * time.Second

// Mirror periodically snapshots a counters.Reader into a Redis hash
// named aeronc:counters:<clientId>.
type Mirror struct {
	cfg    Config
	client *redis.Client
	reader *counters.Reader

	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

// New builds a Mirror. It does not start background work; call Start.
func New(cfg Config, reader *counters.Reader) *Mirror {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.TTL == 0 {
		cfg.TTL = cfg.Interval + 5*time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Mirror{
		cfg:    cfg,
		client: client,
		reader: reader,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Mirror) key() string {
	return fmt.Sprintf("aeronc:counters:%d", m.cfg.ClientID)
}

// Start launches the background snapshot loop in its own goroutine.
func (m *Mirror) Start(ctx context.Context) {
	m.started = true
	go m.loop(ctx)
}

func (m *Mirror) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.snapshotOnce(ctx); err != nil {
				logging.Op().Warn("counters mirror snapshot failed", "error", err)
			}
		}
	}
}

// snapshotOnce writes one HSET + EXPIRE pair for the current counters
// state. SnapshotNow exposes it so callers can drive a single snapshot
// deterministically rather than waiting on the ticker.
func (m *Mirror) snapshotOnce(ctx context.Context) error {
	fields := map[string]interface{}{}
	m.reader.ForEach(func(s counters.Snapshot) {
		fields[s.Label] = s.Value
	})
	if len(fields) == 0 {
		return nil
	}
	if err := m.client.HSet(ctx, m.key(), fields).Err(); err != nil {
		return fmt.Errorf("hset counters: %w", err)
	}
	return m.client.Expire(ctx, m.key(), m.cfg.TTL).Err()
}

// SnapshotNow performs one immediate snapshot, for callers that want
// synchronous control.
func (m *Mirror) SnapshotNow(ctx context.Context) error {
	return m.snapshotOnce(ctx)
}

// Close stops the background loop (if Start was called) and closes the
// Redis client. Idempotent: calls after the first return nil.
func (m *Mirror) Close() error {
	select {
	case <-m.stopCh:
		return nil
	default:
	}
	close(m.stopCh)
	if m.started {
		<-m.done
	}
	return m.client.Close()
}
