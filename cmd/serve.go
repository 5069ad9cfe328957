// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/api"
	"github.com/Thermoquad/smartaudio/internal/metrics"
	"github.com/Thermoquad/smartaudio/internal/vtx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an HTTP control API for the connected VTX",
	Long: `Run an HTTP API that reads and changes VTX settings.

Routes:
  GET  /api/v1/settings
  PUT  /api/v1/channel    {"channel": 32} or {"name": "R1"}
  PUT  /api/v1/frequency  {"frequency": 5800}
  PUT  /api/v1/power      {"level": 2} or {"dbm": 20}
  PUT  /api/v1/mode       {"pitmodeEnabled": true, "unlocked": true, ...}
  GET  /metrics           Prometheus metrics
  GET  /healthz

With --metrics-addr, metrics are served on that address instead of the API
listener.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "API listen address")
}

// startMetricsServer serves handler on addr until ctx is done
func startMetricsServer(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	logger.Info("serving metrics", zap.String("addr", addr))
}

func runServe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	pm := metrics.NewProtocolMetrics(reg)
	client := vtx.NewClient(conn, append(clientOptions(), vtx.WithMetrics(pm))...)
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiMetrics := metrics.Handler(reg)
	if cfg.Metrics.Addr != "" {
		startMetricsServer(ctx, cfg.Metrics.Addr, apiMetrics)
		apiMetrics = nil
	}

	srv := api.New(cfg.API, client, apiMetrics, logger.Named("api"))

	fmt.Printf("SmartAudio - Control API\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Listening: %s\n", cfg.API.Addr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
