package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultPollInterval is how often AwaitJob checks job status.
const DefaultPollInterval = 2 * time.Second

// ErrJobFailed is returned by AwaitJob when the job ends in failure.
var ErrJobFailed = errors.New("job failed")

// Job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is an index job's status record.
type Job struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Done reports whether the job has reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// ChatResponse is the reply to a chat message.
type ChatResponse struct {
	Text          string         `json:"text"`
	Visualization *Visualization `json:"visualization"`
}

// Visualization is a rendering hint attached to data-backed replies.
type Visualization struct {
	Type  string              `json:"type"`
	Title string              `json:"title"`
	Data  []VisualizationItem `json:"data"`
}

type VisualizationItem struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Icon        string `json:"icon"`
}

// Price is a unit price quote for a mint.
type Price struct {
	Mint      string  `json:"mint"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Formatted string  `json:"formatted"`
}

// Label is the display name of an address.
type Label struct {
	Address string `json:"address"`
	Label   string `json:"label"`
	Known   bool   `json:"known"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}

// Client is the HTTP client for the vialytics API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client. A nil httpClient uses a 60 second
// timeout; a nil logger discards output.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Analytics fetches a wallet's analytics document. refresh forces the server
// to recompute instead of serving its cached copy.
func (c *Client) Analytics(ctx context.Context, address string, refresh bool) (json.RawMessage, error) {
	q := url.Values{}
	if refresh {
		q.Set("refresh", "true")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/analytics/"+url.PathEscape(address), q, nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	c.logger.Debug("analytics fetched", "address", address, "bytes", len(raw))
	return raw, nil
}

// StartJob asks the server to index a wallet's history in the background.
func (c *Client) StartJob(ctx context.Context, address string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/analytics/"+url.PathEscape(address)+"/jobs", nil, nil, http.StatusAccepted, &job); err != nil {
		return nil, err
	}
	c.logger.Debug("index job started", "address", address, "job_id", job.ID)
	return &job, nil
}

// GetJob fetches a job's current status.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// AwaitJob polls a job until it completes, fails, or ctx is done. onUpdate,
// if non-nil, sees every polled status. A failed job is returned together
// with an error wrapping ErrJobFailed.
func (c *Client) AwaitJob(ctx context.Context, id string, interval time.Duration, onUpdate func(*Job)) (*Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status == JobFailed {
			msg := ""
			if job.Error != nil {
				msg = *job.Error
			}
			return job, fmt.Errorf("%w: %s", ErrJobFailed, msg)
		}
		if job.Done() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Chat asks a question about a wallet.
func (c *Client) Chat(ctx context.Context, address, message string) (*ChatResponse, error) {
	body := map[string]string{"address": address, "message": message}
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", nil, body, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enrichment fetches third-party enrichment for a wallet.
func (c *Client) Enrichment(ctx context.Context, address string, useCache bool) (json.RawMessage, error) {
	q := url.Values{}
	if !useCache {
		q.Set("cache", "false")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/enrichment/"+url.PathEscape(address), q, nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Price quotes a mint in currency; an empty currency means USD.
func (c *Client) Price(ctx context.Context, mint, currency string) (*Price, error) {
	q := url.Values{}
	if currency != "" {
		q.Set("currency", currency)
	}
	var p Price
	if err := c.do(ctx, http.MethodGet, "/api/v1/prices/"+url.PathEscape(mint), q, nil, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Label names an address.
func (c *Client) Label(ctx context.Context, address string) (*Label, error) {
	var l Label
	if err := c.do(ctx, http.MethodGet, "/api/v1/labels/"+url.PathEscape(address), nil, nil, http.StatusOK, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK, nil)
}

// do sends a request and decodes a want-status JSON response into dst.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, want int, dst any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
