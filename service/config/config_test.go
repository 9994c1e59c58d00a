package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"SERVER_ADDR", "METRICS_ADDR", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS",
	"DATABASE_URL", "REDIS_URL", "NATS_URL",
	"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
	"SOLANA_RPC_URL", "HELIUS_API_KEY", "HELIUS_BASE_URL", "ENRICHMENT_CACHE_TTL",
	"PRICE_SOURCE", "COINGECKO_BASE_URL", "PRICE_CACHE_TTL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "CHAT_QUERY_TIMEOUT", "CHAT_MAX_ROWS",
	"INDEX_MAX_PAGES",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "vialytics-indexing", cfg.TemporalTaskQueue)
	assert.Empty(t, cfg.SolanaRPCURLs)
	assert.Equal(t, PriceSourceStatic, cfg.PriceSource)
	assert.Equal(t, 5*time.Minute, cfg.PriceCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.EnrichmentCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.ChatQueryTimeout)
	assert.Equal(t, 100, cfg.ChatMaxRows)
	assert.Equal(t, 10, cfg.IndexMaxPages)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://db/vialytics")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PRICE_SOURCE", "CoinGecko")
	t.Setenv("PRICE_CACHE_TTL", "30s")
	t.Setenv("CHAT_MAX_ROWS", "25")
	t.Setenv("INDEX_MAX_PAGES", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com, https://mainnet.helius-rpc.com/?api-key=k")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, PriceSourceCoinGecko, cfg.PriceSource)
	assert.Equal(t, 30*time.Second, cfg.PriceCacheTTL)
	assert.Equal(t, 25, cfg.ChatMaxRows)
	assert.Equal(t, 3, cfg.IndexMaxPages)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com", "https://mainnet.helius-rpc.com/?api-key=k"}, cfg.SolanaRPCURLs)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_AggregatesErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRICE_SOURCE", "oracle")
	t.Setenv("PRICE_CACHE_TTL", "soon")
	t.Setenv("CHAT_MAX_ROWS", "many")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "PRICE_SOURCE")
	assert.Contains(t, msg, "invalid duration")
	assert.Contains(t, msg, "invalid integer")
}

func TestLoad_RangeValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("INDEX_MAX_PAGES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IndexMaxPages must be at least 1")
}

func TestMustLoadPanics(t *testing.T) {
	clearEnv(t)
	assert.Panics(t, func() { MustLoad() })
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseURL:       "postgres://localhost/test",
		TemporalHost:      "localhost:7233",
		TemporalNamespace: "default",
		TemporalTaskQueue: "q",
		ChatQueryTimeout:  time.Second,
		ChatMaxRows:       1,
		IndexMaxPages:     1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no database", func(c *Config) { c.DatabaseURL = "" }, "DatabaseURL is required"},
		{"no task queue", func(c *Config) { c.TemporalTaskQueue = "" }, "TemporalTaskQueue is required"},
		{"negative ttl", func(c *Config) { c.PriceCacheTTL = -time.Second }, "cannot be negative"},
		{"zero timeout", func(c *Config) { c.ChatQueryTimeout = 0 }, "ChatQueryTimeout"},
		{"zero rows", func(c *Config) { c.ChatMaxRows = 0 }, "ChatMaxRows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, (&Config{}).SlogLevel())
}
