package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/cache"
	"github.com/brojonat/vialytics/service/config"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/helius"
	"github.com/brojonat/vialytics/service/labels"
	"github.com/brojonat/vialytics/service/metrics"
	natspkg "github.com/brojonat/vialytics/service/nats"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/brojonat/vialytics/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	var sharedCache cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, "vialytics:", logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		sharedCache = rc
	}

	var rpcClient solana.RPCClient
	var rpcURL string
	var registry *solana.Registry
	if len(cfg.SolanaRPCURLs) > 0 {
		rpcClient, rpcURL, err = solana.NewRandomRPCClient(cfg.SolanaRPCURLs)
		if err != nil {
			logger.Error("failed to select solana rpc endpoint", "error", err)
			os.Exit(1)
		}
		registry = solana.NewRegistry(rpcClient, metricsCollector, logger)
	} else {
		registry = solana.NewRegistry(nil, metricsCollector, logger)
	}
	resolver := labels.New()

	// History comes from Helius when a key is configured, else plain RPC.
	var history temporal.HistorySource
	switch {
	case cfg.HeliusAPIKey != "":
		history = helius.NewClient(cfg.HeliusBaseURL, cfg.HeliusAPIKey, sharedCache, cfg.EnrichmentCacheTTL, resolver, registry, metricsCollector, logger)
		logger.Info("indexing history from helius")
	case rpcClient != nil:
		history = solana.NewClient(rpcClient, metricsCollector, logger)
		logger.Info("indexing history from solana rpc", "url", rpcURL, "total_endpoints", len(cfg.SolanaRPCURLs))
	default:
		logger.Error("no history source: set HELIUS_API_KEY or SOLANA_RPC_URL")
		os.Exit(1)
	}

	var oracle prices.Oracle
	switch cfg.PriceSource {
	case config.PriceSourceCoinGecko:
		oracle = prices.NewCoinGecko(cfg.CoinGeckoBaseURL, sharedCache, cfg.PriceCacheTTL, metricsCollector, logger)
	default:
		oracle = prices.NewStatic()
	}
	analyzer := analytics.New(oracle, resolver, registry, metricsCollector, logger)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Store:             store,
		History:           history,
		Analyzer:          analyzer,
		Publisher:         natsPublisher,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}
