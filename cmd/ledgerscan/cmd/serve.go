package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ledgerscan/internal/config"
	"github.com/MeKo-Tech/ledgerscan/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server that extracts ledgers from uploaded statements.

Endpoints:
  GET  /health        health check with build information
  GET  /v1/backends   registered detector and recognizer backends
  POST /v1/ledger     extract a statement (multipart field "file" or raw body,
                      ?format=json|yaml|csv|text)
  GET  /v1/ledger/ws  websocket streaming stage progress and results
  GET  /metrics       Prometheus metrics

Examples:
  ledgerscan serve
  ledgerscan serve --host 0.0.0.0 --port 3000
  ledgerscan serve --rate-limit-enabled --requests-per-minute 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.config())
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origin")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 60, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 5000, "maximum requests per day per client")
	f.Int64("max-data-per-day", 100*1024*1024, "maximum bytes uploaded per day per client")

	a.bind(cmd,
		flagBinding{"server.host", "host"},
		flagBinding{"server.port", "port"},
		flagBinding{"server.cors_origin", "cors-origin"},
		flagBinding{"server.max_upload_mb", "max-upload-size"},
		flagBinding{"server.timeout_sec", "timeout"},
		flagBinding{"server.shutdown_timeout", "shutdown-timeout"},
		flagBinding{"server.rate_limit.enabled", "rate-limit-enabled"},
		flagBinding{"server.rate_limit.requests_per_minute", "requests-per-minute"},
		flagBinding{"server.rate_limit.requests_per_hour", "requests-per-hour"},
		flagBinding{"server.rate_limit.max_requests_per_day", "max-requests-per-day"},
		flagBinding{"server.rate_limit.max_data_per_day", "max-data-per-day"},
	)
	return cmd
}

// serverConfig maps the server section onto the server package.
func serverConfig(cfg *config.Config) server.Config {
	s := cfg.Server
	return server.Config{
		Host:          s.Host,
		Port:          s.Port,
		CORSOrigin:    s.CORSOrigin,
		MaxUploadMB:   int64(s.MaxUploadMB),
		TimeoutSec:    s.TimeoutSec,
		DefaultFormat: cfg.Output.Format,
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimit.Enabled,
			RequestsPerMinute: s.RateLimit.RequestsPerMinute,
			RequestsPerHour:   s.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: s.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     s.RateLimit.MaxDataPerDay,
		},
		Pipeline: cfg.ToPipelineConfig(),
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	scfg := serverConfig(cfg)
	srv, err := server.NewServer(scfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	timeout := cfg.ServerTimeout()
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(scfg.Host, strconv.Itoa(scfg.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Extraction runs inside the request; leave room to write the result.
		WriteTimeout: timeout + 10*time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting ledgerscan server", "addr", httpServer.Addr,
			"rate_limit", scfg.RateLimit.Enabled, "preset", cfg.Preset)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("Server error", "error", serveErr)
		}
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return serveErr
}
