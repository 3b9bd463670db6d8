// Command rpcserver runs the length-prefixed JSON-RPC engine with a small
// set of demo procedures registered, a Prometheus /metrics endpoint, and
// OpenTelemetry span/metric export.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"rpcframe/internal/demoprocs"
	"rpcframe/internal/registry"
	"rpcframe/internal/rpcctx"
	"rpcframe/internal/rpcserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("rpcserver exited with error", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verboseTelemetry bool

	cmd := &cobra.Command{
		Use:   "rpcserver",
		Short: "Run the rpcframe RPC engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(verboseTelemetry)
		},
	}
	cmd.Flags().BoolVar(&verboseTelemetry, "telemetry-stdout", false,
		"print spans and metrics to stdout instead of discarding them")
	return cmd
}

func run(verboseTelemetry bool) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	telemetryWriter := io.Discard
	if verboseTelemetry {
		telemetryWriter = os.Stdout
	}
	tel, err := setupTelemetry(telemetryWriter, "rpcframe-server")
	if err != nil {
		return err
	}
	defer tel.shutdown(context.Background())

	cfg, metricsAddr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Logger = logger

	builder := registry.NewBuilder()
	if err := demoprocs.Register(builder); err != nil {
		return err
	}

	srv := rpcserver.New(cfg, builder)
	err = builder.Register("rpc.procedures", func(rc *rpcctx.Context, params interface{}) (interface{}, error) {
		return map[string]interface{}{"procedures": srv.Lookup().Names()}, nil
	}, nil, nil)
	if err != nil {
		return err
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownBudget+time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	return srv.Shutdown(ctx)
}
