package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/internal/obslog"
	"github.com/ctkgo/deviceaccess/internal/obsmetrics"
)

var metricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve the Prometheus /metrics endpoint until interrupted",
	Long: `Serve-metrics mounts internal/obsmetrics's collector registry behind a
go-chi/chi router and blocks until SIGINT/SIGTERM, at which point it shuts
the HTTP server down gracefully. This only makes sense when metrics are
enabled in configuration (metrics.enabled: true); otherwise the endpoint
always reports 404.`,
	RunE: runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", "", "address to serve /metrics on (default: metrics.address from configuration)")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Address
	}

	if !obsmetrics.IsEnabled() {
		output.NewPrinter(cmd.ErrOrStderr(), output.FormatTable, false).
			Warning("metrics.enabled is false; /metrics will report 404 until it is turned on")
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/metrics", obsmetrics.Handler().ServeHTTP)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		obslog.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		obslog.Info("metrics server shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
