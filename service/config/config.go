package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price sources accepted by PRICE_SOURCE.
const (
	PriceSourceCoinGecko = "coingecko"
	PriceSourceStatic    = "static"
)

// Config holds all application configuration loaded from environment variables.
// Required fields are validated at load time so misconfiguration fails fast.
type Config struct {
	// Server configuration
	ServerAddr         string
	MetricsAddr        string
	LogLevel           string
	CORSAllowedOrigins []string

	// Storage
	DatabaseURL string
	RedisURL    string // empty selects the in-process cache

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Solana / Helius
	SolanaRPCURLs      []string // optional; enables on-chain decimals lookup and RPC history
	HeliusAPIKey       string
	HeliusBaseURL      string
	EnrichmentCacheTTL time.Duration

	// Prices
	PriceSource      string
	CoinGeckoBaseURL string
	PriceCacheTTL    time.Duration

	// Chat
	GeminiAPIKey     string
	GeminiModel      string
	ChatQueryTimeout time.Duration
	ChatMaxRows      int

	// Indexing
	IndexMaxPages int
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory. Every invalid field is reported.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigins = SplitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "vialytics-indexing")

	cfg.SolanaRPCURLs = SplitList(os.Getenv("SOLANA_RPC_URL"))
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	cfg.HeliusBaseURL = getEnvOrDefault("HELIUS_BASE_URL", "https://api-mainnet.helius-rpc.com")

	cfg.PriceSource = strings.ToLower(getEnvOrDefault("PRICE_SOURCE", PriceSourceStatic))
	if cfg.PriceSource != PriceSourceCoinGecko && cfg.PriceSource != PriceSourceStatic {
		errs = append(errs, fmt.Errorf("PRICE_SOURCE: must be %q or %q, got %q", PriceSourceCoinGecko, PriceSourceStatic, cfg.PriceSource))
	}
	cfg.CoinGeckoBaseURL = getEnvOrDefault("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3")

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash")

	for _, d := range []struct {
		key, def string
		dst      *time.Duration
	}{
		{"PRICE_CACHE_TTL", "5m", &cfg.PriceCacheTTL},
		{"ENRICHMENT_CACHE_TTL", "5m", &cfg.EnrichmentCacheTTL},
		{"CHAT_QUERY_TIMEOUT", "5s", &cfg.ChatQueryTimeout},
	} {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	var err error
	if cfg.ChatMaxRows, err = parseInt("CHAT_MAX_ROWS", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.IndexMaxPages, err = parseInt("INDEX_MAX_PAGES", 10); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks an already populated configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}
	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}
	if c.PriceCacheTTL < 0 || c.EnrichmentCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache TTLs cannot be negative"))
	}
	if c.ChatQueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ChatQueryTimeout must be positive"))
	}
	if c.ChatMaxRows < 1 {
		errs = append(errs, fmt.Errorf("ChatMaxRows must be at least 1"))
	}
	if c.IndexMaxPages < 1 {
		errs = append(errs, fmt.Errorf("IndexMaxPages must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel maps debug/info/warn/error onto slog levels.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// SplitList splits a comma-separated value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
