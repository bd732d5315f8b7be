package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lorerank/internal/logging"
	"github.com/Aman-CERP/lorerank/internal/mcp"
	"github.com/Aman-CERP/lorerank/internal/metrics"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server on stdio",
		Long: `Run a Model Context Protocol server exposing search_passages and
corpus_info over stdio.

Stdout carries the protocol stream, so all logs go to
~/.lorerank/logs/server.log. Set --metrics-addr (or server.metrics_addr) to
serve Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

func runServe(ctx context.Context, g *globalOptions, metricsAddr string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if g.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	rt, err := openEngine(ctx, cfg, openOptions{})
	if err != nil {
		slog.Error("engine_open_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}()

	server, err := mcp.NewServer(rt.engine, cfg)
	if err != nil {
		return err
	}
	if rt.metrics != nil {
		server.SetMetrics(rt.metrics)
	}

	if metricsAddr == "" {
		metricsAddr = cfg.Server.MetricsAddr
	}
	if metricsAddr != "" {
		shutdown := serveMetrics(metricsAddr)
		defer shutdown()
	}

	return server.Serve(ctx, cfg.Server.Transport)
}

// serveMetrics starts the /metrics listener and returns its shutdown func.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics_listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
