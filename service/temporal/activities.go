package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/metrics"
	natspkg "github.com/brojonat/vialytics/service/nats"
)

// IndexWalletInput starts an index job.
type IndexWalletInput struct {
	JobID         string `json:"job_id"`
	WalletAddress string `json:"wallet_address"`
	MaxPages      int    `json:"max_pages"`
}

// IndexWalletResult summarizes a finished index job.
type IndexWalletResult struct {
	JobID           string  `json:"job_id"`
	WalletAddress   string  `json:"wallet_address"`
	Pages           int     `json:"pages"`
	Transactions    int     `json:"transactions"`
	Movements       int     `json:"movements"`
	TotalBalanceUSD float64 `json:"total_balance_usd"`
	Error           *string `json:"error,omitempty"`
}

type MarkJobInput struct {
	JobID    string       `json:"job_id"`
	Status   db.JobStatus `json:"status"`
	Progress int          `json:"progress"`
	Error    string       `json:"error,omitempty"`
}

type FetchHistoryInput struct {
	WalletAddress string `json:"wallet_address"`
	Before        string `json:"before,omitempty"`
	Limit         int    `json:"limit"`
}

type WriteRecordsInput struct {
	WalletAddress string             `json:"wallet_address"`
	Transactions  []db.Transaction   `json:"transactions"`
	Movements     []db.TokenMovement `json:"movements"`
}

type WriteRecordsResult struct {
	Transactions int `json:"transactions"`
	Movements    int `json:"movements"`
}

type AnalyzeWalletInput struct {
	WalletAddress string `json:"wallet_address"`
}

type AnalyzeWalletResult struct {
	TotalBalanceUSD   float64 `json:"total_balance_usd"`
	TotalTransactions int     `json:"total_transactions"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	UpdateJob(ctx context.Context, params db.UpdateJobParams) (*db.Job, error)
	WriteWalletRecords(ctx context.Context, wallet string, txs []db.Transaction, movs []db.TokenMovement) error
	SaveAnalytics(ctx context.Context, wallet string, data []byte) error
	ListTransactions(ctx context.Context, wallet string) ([]db.Transaction, error)
	ListTokenMovements(ctx context.Context, wallet string) ([]db.TokenMovement, error)
}

// HistorySource pages through a wallet's history. Both the Helius client
// and the Solana RPC client satisfy it.
type HistorySource interface {
	FetchHistory(ctx context.Context, wallet, before string, limit int) (*db.RecordBatch, error)
}

// WalletAnalyzer computes analytics from a record source.
type WalletAnalyzer interface {
	Analyze(ctx context.Context, src analytics.RecordSource, wallet string) (*analytics.Result, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishJobEvent(ctx context.Context, event *natspkg.JobEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	history   HistorySource
	analyzer  WalletAnalyzer
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates an Activities instance. publisher and m may be nil.
func NewActivities(
	store StoreInterface,
	history HistorySource,
	analyzer WalletAnalyzer,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		history:   history,
		analyzer:  analyzer,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) timer(activity string) func() {
	start := time.Now()
	return func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
		}
	}
}

// MarkJob writes a job's status and progress. Reaching a terminal status
// records the job's end-to-end duration.
func (a *Activities) MarkJob(ctx context.Context, input MarkJobInput) (*db.Job, error) {
	defer a.timer("MarkJob")()

	params := db.UpdateJobParams{
		ID:       input.JobID,
		Status:   input.Status,
		Progress: input.Progress,
	}
	if input.Error != "" {
		params.Error = &input.Error
	}

	job, err := a.store.UpdateJob(ctx, params)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to update job",
			"job_id", input.JobID,
			"status", input.Status,
			"error", err,
		)
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if job.Status.IsTerminal() && a.metrics != nil {
		a.metrics.RecordWorkflowDuration(string(job.Status), time.Since(job.CreatedAt).Seconds())
	}

	a.logger.DebugContext(ctx, "updated job",
		"job_id", job.ID,
		"status", job.Status,
		"progress", job.Progress,
	)
	return job, nil
}

// FetchHistory fetches one page of the wallet's history.
func (a *Activities) FetchHistory(ctx context.Context, input FetchHistoryInput) (*db.RecordBatch, error) {
	defer a.timer("FetchHistory")()

	if a.history == nil {
		return nil, errors.New("no history source configured")
	}

	batch, err := a.history.FetchHistory(ctx, input.WalletAddress, input.Before, input.Limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch history",
			"wallet", input.WalletAddress,
			"before", input.Before,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	a.logger.InfoContext(ctx, "fetched history page",
		"wallet", input.WalletAddress,
		"transactions", len(batch.Transactions),
		"movements", len(batch.Movements),
		"has_more", batch.Cursor != "",
	)
	return batch, nil
}

// WriteRecords upserts a page of records. Re-running it with the same page
// leaves the store unchanged.
func (a *Activities) WriteRecords(ctx context.Context, input WriteRecordsInput) (*WriteRecordsResult, error) {
	defer a.timer("WriteRecords")()

	if err := a.store.WriteWalletRecords(ctx, input.WalletAddress, input.Transactions, input.Movements); err != nil {
		a.logger.ErrorContext(ctx, "failed to write records",
			"wallet", input.WalletAddress,
			"transactions", len(input.Transactions),
			"error", err,
		)
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordRecordsWritten("transaction", len(input.Transactions))
		a.metrics.RecordRecordsWritten("token_movement", len(input.Movements))
	}

	a.logger.InfoContext(ctx, "wrote records",
		"wallet", input.WalletAddress,
		"transactions", len(input.Transactions),
		"movements", len(input.Movements),
	)
	return &WriteRecordsResult{
		Transactions: len(input.Transactions),
		Movements:    len(input.Movements),
	}, nil
}

// AnalyzeWallet computes the wallet's analytics from the store and saves
// them as the cached result.
func (a *Activities) AnalyzeWallet(ctx context.Context, input AnalyzeWalletInput) (*AnalyzeWalletResult, error) {
	defer a.timer("AnalyzeWallet")()

	result, err := a.analyzer.Analyze(ctx, a.store, input.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze wallet: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analytics: %w", err)
	}
	if err := a.store.SaveAnalytics(ctx, input.WalletAddress, data); err != nil {
		return nil, fmt.Errorf("failed to save analytics: %w", err)
	}

	return &AnalyzeWalletResult{
		TotalBalanceUSD:   result.PortfolioOverview.TotalBalanceUSD,
		TotalTransactions: result.ActivityInsights.TotalTransactions,
	}, nil
}

// PublishJobEvent announces a job update. Without a publisher it is a no-op.
func (a *Activities) PublishJobEvent(ctx context.Context, event *natspkg.JobEvent) error {
	defer a.timer("PublishJobEvent")()

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.PublishJobEvent(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "failed to publish job event",
			"job_id", event.JobID,
			"error", err,
		)
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}
