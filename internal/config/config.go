// Package config loads the YAML/env configuration surface this
// repository carries around the bootstrap core (aeronDirectoryName,
// timeouts, idle strategy selection, log level, optional sink DSNs).
// It is a convenience layer that produces a populated Context; it does
// not replace the Context's own conclude() defaulting step. Mirrors the
// teacher's LoadFromFile/LoadFromEnv pair and its JSON-tagged nested
// config structs, adapted to YAML since that's the format this domain's
// config file naturally takes (operators hand-edit it, unlike the
// teacher's machine-generated JSON).
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file/env-loadable configuration surface. Durations are
// expressed in milliseconds in YAML for operator-friendliness and
// converted to time.Duration by the DriverTimeout, KeepAliveInterval
// and InterServiceTimeout accessors; CountersMirrorInterval is filled
// in by applyDefaults.
type Config struct {
	AeronDirectoryName       string `yaml:"aeron_directory_name"`
	DriverTimeoutMs          int64  `yaml:"driver_timeout_ms"`
	KeepAliveIntervalMs      int64  `yaml:"keep_alive_interval_ms"`
	InterServiceTimeoutMs    int64  `yaml:"inter_service_timeout_ms"`
	IdleStrategy             string `yaml:"idle_strategy"` // sleeping, noop, backoff
	UseConductorAgentInvoker bool   `yaml:"use_conductor_agent_invoker"`
	LogLevel                 string `yaml:"log_level"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`

	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingEndpoint string `yaml:"tracing_endpoint"`

	CountersMirrorRedisAddr string        `yaml:"counters_mirror_redis_addr"`
	CountersMirrorInterval  time.Duration `yaml:"-"`
	CountersMirrorIntervalMs int64        `yaml:"counters_mirror_interval_ms"`

	AuditPostgresDSN string `yaml:"audit_postgres_dsn"`
}

const (
	defaultDriverTimeoutMs       = 10_000
	defaultKeepAliveIntervalMs   = 500
	defaultCountersMirrorIntervalMs = 10_000
	defaultIdleStrategy          = "sleeping"
	defaultLogLevel              = "info"
)

// LoadFromFile reads and parses a YAML config file, applying defaults
// for zero-valued fields afterward.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a Config with every default applied, for callers that
// have no config file (e.g. the CLI run with bare flags).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DriverTimeoutMs == 0 {
		c.DriverTimeoutMs = defaultDriverTimeoutMs
	}
	if c.KeepAliveIntervalMs == 0 {
		c.KeepAliveIntervalMs = defaultKeepAliveIntervalMs
	}
	if c.IdleStrategy == "" {
		c.IdleStrategy = defaultIdleStrategy
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CountersMirrorIntervalMs == 0 {
		c.CountersMirrorIntervalMs = defaultCountersMirrorIntervalMs
	}
	c.CountersMirrorInterval = time.Duration(c.CountersMirrorIntervalMs) * time.Millisecond
}

// LoadFromEnv applies AERONC_* overrides on top of an already-loaded
// Config, the same two-step pattern the teacher's config package uses.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("AERONC_DIRECTORY"); v != "" {
		cfg.AeronDirectoryName = v
	}
	if v := os.Getenv("AERONC_DRIVER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DriverTimeoutMs = n
		}
	}
	if v := os.Getenv("AERONC_KEEPALIVE_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.KeepAliveIntervalMs = n
		}
	}
	if v := os.Getenv("AERONC_INTER_SERVICE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.InterServiceTimeoutMs = n
		}
	}
	if v := os.Getenv("AERONC_IDLE_STRATEGY"); v != "" {
		cfg.IdleStrategy = v
	}
	if v := os.Getenv("AERONC_USE_INVOKER"); v != "" {
		cfg.UseConductorAgentInvoker = v == "true" || v == "1"
	}
	if v := os.Getenv("AERONC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AERONC_METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AERONC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("AERONC_TRACING_ENABLED"); v != "" {
		cfg.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AERONC_TRACING_ENDPOINT"); v != "" {
		cfg.TracingEndpoint = v
	}
	if v := os.Getenv("AERONC_COUNTERS_MIRROR_REDIS_ADDR"); v != "" {
		cfg.CountersMirrorRedisAddr = v
	}
	if v := os.Getenv("AERONC_AUDIT_POSTGRES_DSN"); v != "" {
		cfg.AuditPostgresDSN = v
	}
}

// DriverTimeout returns the configured driver timeout as a Duration.
func (c *Config) DriverTimeout() time.Duration {
	return time.Duration(c.DriverTimeoutMs) * time.Millisecond
}

// KeepAliveInterval returns the configured keepalive interval as a Duration.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalMs) * time.Millisecond
}

// InterServiceTimeout returns the configured inter-service timeout as a
// Duration, or zero if unset (meaning: fall back to the CnC metadata
// value, per spec.md §9's resolved Open Question).
func (c *Config) InterServiceTimeout() time.Duration {
	return time.Duration(c.InterServiceTimeoutMs) * time.Millisecond
}
