package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/vialytics/service/cache"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/brojonat/vialytics/service/solana"
)

const (
	DefaultBaseURL  = "https://api-mainnet.helius-rpc.com"
	DefaultCacheTTL = 5 * time.Minute

	// MaxPageSize is the largest page the transactions endpoint serves.
	MaxPageSize = 100

	rpcTimeout  = 10 * time.Second
	restTimeout = 8 * time.Second
)

// Labeler names counterparties in the normalized view.
type Labeler interface {
	Label(addr string) string
}

// TokenRegistry supplies decimals for transfers that lack a raw amount.
type TokenRegistry interface {
	Lookup(ctx context.Context, mint string) solana.TokenInfo
}

// Client talks to the Helius DAS JSON-RPC and REST APIs.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	labels     Labeler
	tokens     TokenRegistry
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a Helius client. A nil cache gets an in-process one and
// a nil registry falls back to static token metadata.
func NewClient(baseURL, apiKey string, c cache.Cache, ttl time.Duration, labels Labeler, tokens TokenRegistry, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if tokens == nil {
		tokens = solana.NewRegistry(nil, m, logger)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		cache:      c,
		ttl:        ttl,
		labels:     labels,
		tokens:     tokens,
		metrics:    m,
		logger:     logger,
	}
}

// StatusError is returned when Helius answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helius %s: unexpected status code %d", e.Endpoint, e.StatusCode)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcCall performs a DAS JSON-RPC call and decodes the result into dst.
func (c *Client) rpcCall(ctx context.Context, method string, params, dst any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "vialytics", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	u := c.baseURL
	if c.apiKey != "" {
		u += "?" + url.Values{"api-key": {c.apiKey}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req, method)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("helius rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if err := json.Unmarshal(resp.Result, dst); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// get performs a REST GET against path and decodes the body into dst.
func (c *Client) get(ctx context.Context, path, endpoint string, q url.Values, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("api-key", c.apiKey)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, start)
		return nil, fmt.Errorf("failed to execute %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	c.logger.DebugContext(req.Context(), "helius request",
		"endpoint", endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

func (c *Client) record(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordHeliusRequest(endpoint, status, time.Since(start).Seconds())
	}
}

// AssetsByOwner returns the first page of fungible and non-fungible assets
// held by address, including its native balance.
func (c *Client) AssetsByOwner(ctx context.Context, address string) (*AssetList, error) {
	params := map[string]any{
		"ownerAddress": address,
		"page":         1,
		"limit":        100,
		"displayOptions": map[string]bool{
			"showFungible":      true,
			"showNativeBalance": true,
		},
	}
	var assets AssetList
	if err := c.rpcCall(ctx, "getAssetsByOwner", params, &assets); err != nil {
		return nil, err
	}
	return &assets, nil
}

// TransactionHistory returns up to limit enhanced transactions for address,
// newest first, starting after the before signature when it is set.
func (c *Client) TransactionHistory(ctx context.Context, address, before string, limit int) ([]EnhancedTransaction, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}

	var txs []EnhancedTransaction
	path := "/v0/addresses/" + url.PathEscape(address) + "/transactions"
	if err := c.get(ctx, path, "transactions", q, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// FetchHistory returns one page of wallet history as store rows. The
// returned cursor is empty once history is exhausted.
func (c *Client) FetchHistory(ctx context.Context, wallet, before string, limit int) (*db.RecordBatch, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	txs, err := c.TransactionHistory(ctx, wallet, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction history: %w", err)
	}

	records, movements := c.ToRecords(ctx, wallet, txs)
	batch := &db.RecordBatch{Transactions: records, Movements: movements}
	if len(txs) == limit {
		batch.Cursor = txs[len(txs)-1].Signature
	}
	return batch, nil
}

// Enrichment returns the combined asset and history view of address. A
// cached view younger than the TTL is returned when useCache is set. Either
// upstream call may fail without failing the whole view; if both fail the
// error is returned and nothing is cached.
func (c *Client) Enrichment(ctx context.Context, address string, useCache bool) (*Enrichment, error) {
	key := "helius:" + address
	if useCache {
		var cached Enrichment
		hit := cache.GetJSON(ctx, c.cache, key, &cached)
		if c.metrics != nil {
			c.metrics.RecordCacheRead("enrichment", hit)
		}
		if hit {
			return &cached, nil
		}
	}

	result := &Enrichment{FetchedAt: time.Now().Unix(), Source: "helius"}

	assets, assetsErr := c.AssetsByOwner(ctx, address)
	if assetsErr != nil {
		c.logger.WarnContext(ctx, "failed to fetch assets", "address", address, "error", assetsErr)
	} else {
		result.Assets = assets
	}

	txs, txErr := c.TransactionHistory(ctx, address, "", MaxPageSize)
	if txErr != nil {
		c.logger.WarnContext(ctx, "failed to fetch transactions", "address", address, "error", txErr)
	} else {
		result.Transactions = txs
	}

	if assetsErr != nil && txErr != nil {
		return nil, fmt.Errorf("failed to fetch enrichment: %w", assetsErr)
	}

	result.Normalized = c.normalize(result, address)

	if err := cache.SetJSON(ctx, c.cache, key, result, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "failed to cache enrichment", "address", address, "error", err)
	}
	return result, nil
}
