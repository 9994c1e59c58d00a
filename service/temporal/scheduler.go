package temporal

import "context"

// JobStarter launches background index jobs.
type JobStarter interface {
	// StartIndexJob starts IndexWalletWorkflow for an existing job record.
	StartIndexJob(ctx context.Context, input IndexWalletInput) error
}

// workflowID returns the Temporal workflow ID for an index job.
func workflowID(jobID string) string {
	return "index-wallet-" + jobID
}
