package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/vialytics/service/db"
	natspkg "github.com/brojonat/vialytics/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const (
	DefaultMaxPages = 10
	pageSize        = 100

	progressStarted  = 10
	progressFetching = 20
	progressWritten  = 80
	progressDone     = 100
)

// IndexWalletWorkflow pulls a wallet's history into the record store page by
// page, computes its analytics, and caches the result. The job record and
// the jobs.{wallet} subject are updated at each stage:
//
//	running 10 -> running 20 (first page fetched) -> running 80 (records
//	written) -> completed 100
//
// Any failing step marks the job failed with progress 0 and the error text.
func IndexWalletWorkflow(ctx workflow.Context, input IndexWalletInput) (*IndexWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("IndexWalletWorkflow started", "job_id", input.JobID, "address", input.WalletAddress)

	result := &IndexWalletResult{JobID: input.JobID, WalletAddress: input.WalletAddress}

	maxPages := input.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	fail := func(step string, err error) (*IndexWalletResult, error) {
		msg := fmt.Sprintf("%s: %v", step, err)
		result.Error = &msg
		logger.Error("index job failed", "job_id", input.JobID, "step", step, "error", err)
		if markErr := setStatus(ctx, input, db.JobFailed, 0, msg, result); markErr != nil {
			logger.Error("failed to mark job failed", "job_id", input.JobID, "error", markErr)
		}
		return result, fmt.Errorf("%s: %w", step, err)
	}

	if err := setStatus(ctx, input, db.JobRunning, progressStarted, "", result); err != nil {
		return fail("failed to mark job running", err)
	}

	cursor := ""
	for page := 0; page < maxPages; page++ {
		var batch *db.RecordBatch
		err := workflow.ExecuteActivity(ctx, a.FetchHistory, FetchHistoryInput{
			WalletAddress: input.WalletAddress,
			Before:        cursor,
			Limit:         pageSize,
		}).Get(ctx, &batch)
		if err != nil {
			return fail("failed to fetch history", err)
		}
		result.Pages++

		if page == 0 {
			if err := setStatus(ctx, input, db.JobRunning, progressFetching, "", result); err != nil {
				return fail("failed to update job progress", err)
			}
		}

		if len(batch.Transactions) > 0 {
			var written *WriteRecordsResult
			err = workflow.ExecuteActivity(ctx, a.WriteRecords, WriteRecordsInput{
				WalletAddress: input.WalletAddress,
				Transactions:  batch.Transactions,
				Movements:     batch.Movements,
			}).Get(ctx, &written)
			if err != nil {
				return fail("failed to write records", err)
			}
			result.Transactions += written.Transactions
			result.Movements += written.Movements
		}

		logger.Info("indexed page",
			"job_id", input.JobID,
			"page", page+1,
			"transactions", len(batch.Transactions),
			"movements", len(batch.Movements),
		)

		if batch.Cursor == "" {
			break
		}
		cursor = batch.Cursor
	}

	if err := setStatus(ctx, input, db.JobRunning, progressWritten, "", result); err != nil {
		return fail("failed to update job progress", err)
	}

	var analyzed *AnalyzeWalletResult
	err := workflow.ExecuteActivity(ctx, a.AnalyzeWallet, AnalyzeWalletInput{WalletAddress: input.WalletAddress}).Get(ctx, &analyzed)
	if err != nil {
		return fail("failed to analyze wallet", err)
	}
	result.TotalBalanceUSD = analyzed.TotalBalanceUSD

	if err := setStatus(ctx, input, db.JobCompleted, progressDone, "", result); err != nil {
		return fail("failed to mark job completed", err)
	}

	logger.Info("IndexWalletWorkflow completed",
		"job_id", input.JobID,
		"pages", result.Pages,
		"transactions", result.Transactions,
		"movements", result.Movements,
	)
	return result, nil
}

// setStatus persists the job status and then announces it. A failed
// announcement is logged and does not fail the job.
func setStatus(ctx workflow.Context, input IndexWalletInput, status db.JobStatus, progress int, errMsg string, result *IndexWalletResult) error {
	var job *db.Job
	err := workflow.ExecuteActivity(ctx, a.MarkJob, MarkJobInput{
		JobID:    input.JobID,
		Status:   status,
		Progress: progress,
		Error:    errMsg,
	}).Get(ctx, &job)
	if err != nil {
		return err
	}

	event := natspkg.FromJob(job)
	event.PublishedAt = workflow.Now(ctx).UTC()
	event.Transactions = result.Transactions
	event.Movements = result.Movements

	if err := workflow.ExecuteActivity(ctx, a.PublishJobEvent, event).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("failed to publish job event", "job_id", input.JobID, "error", err)
	}
	return nil
}
