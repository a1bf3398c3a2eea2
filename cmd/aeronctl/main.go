// Command aeronctl is a small diagnostic front end for the bootstrap
// core: it builds a Context from flags or a config file, connects, runs
// one operation, and exits. Grounded on the teacher's cmd/nova root
// command: persistent flags shared by every subcommand, one
// *cobra.Command per operation, thin glue that delegates to the
// library it fronts.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	aeronclient "github.com/oriys/aeronclient"
	"github.com/oriys/aeronclient/internal/auditlog"
	"github.com/oriys/aeronclient/internal/config"
	"github.com/oriys/aeronclient/internal/countersmirror"
	"github.com/oriys/aeronclient/internal/idlestrategy"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/metrics"
	"github.com/oriys/aeronclient/internal/observability"
)

var (
	aeronDir   string
	configFile string
	useInvoker bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aeronctl",
		Short: "aeronctl - bootstrap and exercise a media-driver client",
		Long:  "A diagnostic CLI that connects to a media driver's CnC file and exercises publication/subscription registration.",
	}

	rootCmd.PersistentFlags().StringVar(&aeronDir, "dir", "", "Path to the media driver's CnC file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&useInvoker, "invoker", false, "Drive the conductor from this goroutine instead of a background one")

	rootCmd.AddCommand(
		connectCmd(),
		pubCmd(),
		subCmd(),
		countersCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file (if any) with env overrides and the
// --dir/--invoker persistent flags, the same LoadFromFile/LoadFromEnv
// two-step the teacher's own CLI uses.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}
	config.LoadFromEnv(cfg)

	if cmd.Flags().Changed("dir") {
		cfg.AeronDirectoryName = aeronDir
	}
	if cmd.Flags().Changed("invoker") {
		cfg.UseConductorAgentInvoker = useInvoker
	}
	return cfg, nil
}

// runtime bundles the facade with the optional sinks newFacade wired up
// for it, so every command can tear all of them down with one Close
// call regardless of which sinks cfg actually enabled.
type runtime struct {
	facade   *aeronclient.ClientFacade
	metrics  *metrics.Metrics
	mirror   *countersmirror.Mirror
	auditLog *auditlog.Log
}

// Close releases the optional sinks before the facade itself, so the
// mirror's last tick and the audit log's final flush still see a live
// counters store / connection.
func (r *runtime) Close() error {
	if r.mirror != nil {
		r.mirror.Close()
	}
	if r.auditLog != nil {
		r.auditLog.Close()
	}
	return r.facade.Close()
}

func idleStrategyFor(name string) idlestrategy.IdleStrategy {
	switch name {
	case "noop":
		return idlestrategy.NoOp{}
	case "backoff":
		return idlestrategy.NewBackoff(time.Millisecond, 100*time.Millisecond)
	default:
		return idlestrategy.NewSleeping()
	}
}

// newFacade builds an aeronclient.Context from cfg and connects, wiring
// a fresh Metrics instance and tracing provider so every invocation is
// instrumented regardless of whether `serve` ever exposes metrics over
// HTTP, plus the two optional sinks from SPEC_FULL.md §4.12/§4.13: a
// Redis counters mirror and a Postgres registration audit log, each
// only constructed when its config DSN/address is non-empty.
func newFacade(cfg *config.Config) (*runtime, error) {
	logging.SetLevelFromString(cfg.LogLevel)

	if err := observability.Init(context.Background(), observability.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "aeronctl",
		SampleRate:  1.0,
	}); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	m := metrics.New()

	var auditLog *auditlog.Log
	if cfg.AuditPostgresDSN != "" {
		log, err := auditlog.Open(context.Background(), cfg.AuditPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		auditLog = log
	}

	facade, err := aeronclient.Connect(&aeronclient.Context{
		AeronDirectoryName:       cfg.AeronDirectoryName,
		DriverTimeout:            cfg.DriverTimeout(),
		KeepAliveInterval:        cfg.KeepAliveInterval(),
		InterServiceTimeout:      cfg.InterServiceTimeout(),
		UseConductorAgentInvoker: cfg.UseConductorAgentInvoker,
		IdleStrategy:             idleStrategyFor(cfg.IdleStrategy),
		Metrics:                  m,
		AuditLog:                 auditLog,
	})
	if err != nil {
		if auditLog != nil {
			auditLog.Close()
		}
		return nil, err
	}

	var mirror *countersmirror.Mirror
	if cfg.CountersMirrorRedisAddr != "" {
		mirror = countersmirror.New(countersmirror.Config{
			Addr:     cfg.CountersMirrorRedisAddr,
			ClientID: facade.ClientID(),
			Interval: cfg.CountersMirrorInterval,
		}, facade.Counters())
		mirror.Start(context.Background())
	}

	return &runtime{facade: facade, metrics: m, mirror: mirror, auditLog: auditLog}, nil
}

func parseStreamID(s string) (int32, error) {
	var n int32
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid streamId %q: %w", s, err)
	}
	return n, nil
}
