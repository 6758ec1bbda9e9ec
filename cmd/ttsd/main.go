// Command ttsd serves WLF fitting and time-temperature superposition over HTTP.
//
// The service is stateless apart from its snapshot store: a client fits
// measured shift factors, estimates a shift-factor table at a new reference
// temperature under a session name, and later shifts frequency sweeps with
// that table to build a master curve.
//
// Usage:
//
//	ttsd \
//	  -listen=:8090 \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -reference-temp=40
//
// Environment variables:
//
//	LISTEN         - HTTP listen address (default: :8090)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
//	STORAGE        - Snapshot storage: memory, redis (default: memory)
//	REDIS_ADDR     - Redis address (default: localhost:6379)
//	REDIS_PASSWORD - Redis password
//	REDIS_DB       - Redis database number (default: 0)
//	REDIS_TTL      - Redis snapshot TTL (default: 30m)
//	SNAPSHOT_TTL   - In-memory snapshot TTL, 0 for none (default: 0)
//	REFERENCE_TEMP - Default fit reference temperature in °C (default: 40)
//	AXIS_POINTS    - Points on the estimate axis (default: 100)
//	EXPORT_STEP    - Export axis step in °C (default: 5)
//	ADAPTER        - Measurement adapter for /v1/shift: csv, http (optional)
//	ADAPTER_*      - Adapter settings, e.g. ADAPTER_PATH or ADAPTER_URL
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/mastercurve/cmd/ttsd/config"
	"github.com/HatiCode/mastercurve/cmd/ttsd/logger"
	"github.com/HatiCode/mastercurve/cmd/ttsd/metrics"
	"github.com/HatiCode/mastercurve/cmd/ttsd/router"
	"github.com/HatiCode/mastercurve/cmd/ttsd/store"
	"github.com/HatiCode/mastercurve/pkg/adapters"
	"github.com/HatiCode/mastercurve/pkg/httpx"
	"github.com/HatiCode/mastercurve/pkg/session"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mastercurve ttsd",
		"version", version,
		"listen", cfg.Listen,
		"storage", cfg.Storage,
		"referenceTemp", cfg.ReferenceTemp,
	)

	var adapter adapters.Adapter
	if cfg.Adapter != "" {
		a, err := adapters.New(cfg.Adapter, cfg.AdapterConfig)
		if err != nil {
			logger.Error("failed to create adapter", "adapter", cfg.Adapter, "error", err)
			os.Exit(1)
		}
		adapter = a
		logger.Info("measurement adapter configured", "adapter", a.Name())
	}

	st, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if closer, ok := st.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	opts := session.DefaultOptions
	opts.Axis = cfg.EstimateAxis()

	mux := router.SetupRoutes(st, router.Options{
		Session:       opts,
		ExportAxis:    cfg.ExportAxis(),
		ReferenceTemp: cfg.ReferenceTemp,
		Adapter:       adapter,
		Gatherer:      prometheus.DefaultGatherer,
	}, metrics.New(prometheus.DefaultRegisterer), logger)

	handler := httpx.Chain(mux, httpx.LoggingMiddleware(logger), httpx.RecoveryMiddleware(logger))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down", "addr", httpServer.Addr())

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
