package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	aeronclient "github.com/oriys/aeronclient"
	"github.com/oriys/aeronclient/internal/counters"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/metrics"
)

// dumpCounters writes one tab-aligned row per allocated counter,
// matching the teacher's tabwriter(os.Stdout, 0, 0, 2, ' ', 0) list
// commands.
func dumpCounters(facade *aeronclient.ClientFacade) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tLABEL\tVALUE")
	facade.Counters().ForEach(func(s counters.Snapshot) {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\n", s.ID, s.TypeID, s.Label, s.Value)
	})
	return w.Flush()
}

func serveCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect, expose the Prometheus metrics handler, and run until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newFacade(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			// --http always wins when the operator passed it; otherwise
			// fall back to the config file's metrics_addr, and only then to
			// the flag's own baked-in default.
			if !cmd.Flags().Changed("http") && cfg.MetricsAddr != "" {
				httpAddr = cfg.MetricsAddr
			}
			server := newMetricsServer(httpAddr, rt.metrics)

			go func() {
				logging.Op().Info("serving metrics", "addr", httpAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Warn("metrics server stopped", "error", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", ":9469", "Address to serve /metrics on")
	return cmd
}

func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
