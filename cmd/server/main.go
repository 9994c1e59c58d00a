package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/cache"
	"github.com/brojonat/vialytics/service/chat"
	"github.com/brojonat/vialytics/service/config"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/helius"
	"github.com/brojonat/vialytics/service/labels"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/server"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/brojonat/vialytics/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"price_source", cfg.PriceSource,
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
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Shared cache for prices and enrichment
	var sharedCache cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, "vialytics:", logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		sharedCache = rc
		logger.Info("using redis cache")
	}

	var oracle prices.Oracle
	switch cfg.PriceSource {
	case config.PriceSourceCoinGecko:
		oracle = prices.NewCoinGecko(cfg.CoinGeckoBaseURL, sharedCache, cfg.PriceCacheTTL, metricsCollector, logger)
	default:
		oracle = prices.NewStatic()
	}

	var registry *solana.Registry
	if len(cfg.SolanaRPCURLs) > 0 {
		rpcClient, rpcURL, err := solana.NewRandomRPCClient(cfg.SolanaRPCURLs)
		if err != nil {
			logger.Error("failed to select solana rpc endpoint", "error", err)
			os.Exit(1)
		}
		registry = solana.NewRegistry(rpcClient, metricsCollector, logger)
		logger.Info("using solana rpc for token metadata", "url", rpcURL, "total_endpoints", len(cfg.SolanaRPCURLs))
	} else {
		registry = solana.NewRegistry(nil, metricsCollector, logger)
	}
	resolver := labels.New()

	analyzer := analytics.New(oracle, resolver, registry, metricsCollector, logger)

	httpServer := server.New(cfg.ServerAddr, store, analyzer, metricsCollector, logger).
		WithPrices(oracle).
		WithLabels(resolver).
		WithAllowedOrigins(cfg.CORSAllowedOrigins)

	// Initialize Temporal client for index jobs
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	httpServer.WithJobs(temporalClient, cfg.IndexMaxPages)

	// Initialize NATS consumer for job event streaming
	sse, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	httpServer.WithEvents(sse)

	if cfg.HeliusAPIKey != "" {
		heliusClient := helius.NewClient(cfg.HeliusBaseURL, cfg.HeliusAPIKey, sharedCache, cfg.EnrichmentCacheTTL, resolver, registry, metricsCollector, logger)
		httpServer.WithEnrichment(heliusClient)
	} else {
		logger.Warn("HELIUS_API_KEY not set, enrichment disabled")
	}

	// A service without a generator answers every message with a canned reply.
	var generator chat.Generator
	if cfg.GeminiAPIKey != "" {
		gemini, err := chat.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		generator = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, chat will not answer questions")
	}
	chatService := chat.NewService(generator, store, db.QueryOptions{
		Timeout: cfg.ChatQueryTimeout,
		MaxRows: cfg.ChatMaxRows,
	}, metricsCollector, logger)
	httpServer.WithChat(chatService)

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"enrichment", cfg.HeliusAPIKey != "",
		"chat", cfg.GeminiAPIKey != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}
