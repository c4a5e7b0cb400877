// Package main is the entry point for the HRDPS point weather API server.
//
// It loads configuration, builds the coverage client and assessment service,
// mounts the HTTP chassis (middleware, routing, health checks), and serves
// until interrupted. Graceful shutdown is handled via OS signal interception
// (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"hrdpswx/internal/api/handlers"
	"hrdpswx/internal/assessment"
	"hrdpswx/internal/config"
	"hrdpswx/internal/core"
	"hrdpswx/internal/observability"
	"hrdpswx/internal/types"
	"hrdpswx/internal/wcs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("hrdpswx API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"wcs_base_url", cfg.WCS.BaseURL,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Metrics are optional; local runs keep the no-op collector.
	if cfg.Observability.MetricsEnabled {
		collector, err := observability.NewCloudWatchMetricsFromRegion(
			context.Background(),
			cfg.Observability.AWSRegion,
			cfg.Observability.MetricNamespace,
			logger,
		)
		if err != nil {
			return fmt.Errorf("creating metrics collector: %w", err)
		}
		srv.Metrics = collector
	}

	coverageClient := wcs.NewClient(cfg.WCS, logger)
	srv.HealthProbes = append(srv.HealthProbes, wcs.NewProbe(coverageClient))

	svc := assessment.NewService(coverageClient, cfg.Assessment, cfg.WCS.FetchConcurrency, logger)

	defaults := types.Thresholds{
		MaxWindKts: cfg.Assessment.DefaultMaxWindKts,
		MaxGustKts: cfg.Assessment.DefaultMaxGustKts,
	}
	weatherHandler := handlers.NewWeatherHandler(svc, srv.Validator, defaults, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		weatherHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
