package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/vialytics/service/cache"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/brojonat/vialytics/service/solana"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultCacheTTL     = 5 * time.Minute

	sourceCoinGecko = "coingecko"
)

var coinGeckoIDs = map[string]string{
	solana.WrappedSOLMint: "solana",
	solana.USDCMint:       "usd-coin",
	solana.USDTMint:       "tether",
	solana.BONKMint:       "bonk",
	solana.MPLXMint:       "metaplex",
	solana.RAYMint:        "raydium",
}

// CoinGecko looks prices up on the CoinGecko simple price API. Results are
// cached by coin id and currency for the configured TTL.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewCoinGecko creates a CoinGecko oracle. A nil cache gets an in-process one;
// a zero ttl uses DefaultCacheTTL.
func NewCoinGecko(baseURL string, c cache.Cache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      c,
		ttl:        ttl,
		metrics:    m,
		logger:     logger,
	}
}

func (g *CoinGecko) Price(ctx context.Context, mint, currency string) float64 {
	id, ok := coinGeckoIDs[mint]
	if !ok {
		g.record("unknown")
		return 0
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	vs := strings.ToLower(currency)
	key := "price:" + id + ":" + vs

	if data, ok := g.cache.Get(ctx, key); ok {
		if price, err := strconv.ParseFloat(string(data), 64); err == nil {
			g.record("hit")
			return price
		}
	}

	price, err := g.fetch(ctx, id, vs)
	if err != nil {
		g.record("error")
		g.logger.WarnContext(ctx, "failed to fetch price",
			"mint", mint,
			"coingecko_id", id,
			"error", err,
		)
		return 0
	}
	g.record("miss")

	if err := g.cache.Set(ctx, key, []byte(strconv.FormatFloat(price, 'f', -1, 64)), g.ttl); err != nil {
		g.logger.WarnContext(ctx, "failed to cache price", "key", key, "error", err)
	}
	return price
}

func (g *CoinGecko) fetch(ctx context.Context, id, vs string) (float64, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if g.metrics != nil {
		g.metrics.RecordPriceRequest(sourceCoinGecko, time.Since(start).Seconds())
	}
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	// A missing entry is a valid answer of 0, matching an unknown id.
	return body[id][vs], nil
}

func (g *CoinGecko) record(outcome string) {
	if g.metrics != nil {
		g.metrics.RecordPriceLookup(sourceCoinGecko, outcome)
	}
}
