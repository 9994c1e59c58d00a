package temporal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brojonat/vialytics/service/db"
	natspkg "github.com/brojonat/vialytics/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// jobRecorder captures MarkJob and PublishJobEvent calls made by the workflow.
type jobRecorder struct {
	mu     sync.Mutex
	marks  []MarkJobInput
	events []*natspkg.JobEvent
}

func (r *jobRecorder) markJob(ctx context.Context, in MarkJobInput) (*db.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, in)
	job := &db.Job{ID: in.JobID, WalletAddress: testWallet, Status: in.Status, Progress: in.Progress}
	if in.Error != "" {
		job.Error = &in.Error
	}
	return job, nil
}

func (r *jobRecorder) publish(ctx context.Context, event *natspkg.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *jobRecorder) progress() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.marks))
	for i, m := range r.marks {
		out[i] = m.Progress
	}
	return out
}

func newWorkflowEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *jobRecorder) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.MarkJob)
	env.RegisterActivity(activities.FetchHistory)
	env.RegisterActivity(activities.WriteRecords)
	env.RegisterActivity(activities.AnalyzeWallet)
	env.RegisterActivity(activities.PublishJobEvent)

	rec := &jobRecorder{}
	env.OnActivity(activities.MarkJob, mock.Anything, mock.Anything).Return(rec.markJob)
	env.OnActivity(activities.PublishJobEvent, mock.Anything, mock.Anything).Return(rec.publish)
	return env, rec
}

func page(cursor string, sigs ...string) *db.RecordBatch {
	batch := &db.RecordBatch{Cursor: cursor}
	for _, sig := range sigs {
		batch.Transactions = append(batch.Transactions, db.Transaction{WalletAddress: testWallet, Signature: sig, Status: true})
		batch.Movements = append(batch.Movements, db.TokenMovement{WalletAddress: testWallet, Signature: sig, Amount: 1})
	}
	return batch
}

func TestIndexWalletWorkflow(t *testing.T) {
	env, rec := newWorkflowEnv(t)

	var befores []string
	env.OnActivity(a.FetchHistory, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, in FetchHistoryInput) (*db.RecordBatch, error) {
			befores = append(befores, in.Before)
			if in.Before == "" {
				return page("sig2", "sig1", "sig2"), nil
			}
			return page("", "sig3"), nil
		})
	env.OnActivity(a.WriteRecords, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, in WriteRecordsInput) (*WriteRecordsResult, error) {
			return &WriteRecordsResult{Transactions: len(in.Transactions), Movements: len(in.Movements)}, nil
		})
	env.OnActivity(a.AnalyzeWallet, mock.Anything, mock.Anything).Return(&AnalyzeWalletResult{TotalBalanceUSD: 136}, nil)

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-1", WalletAddress: testWallet})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result IndexWalletResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Transactions)
	assert.Equal(t, 3, result.Movements)
	assert.Equal(t, 136.0, result.TotalBalanceUSD)
	assert.Nil(t, result.Error)

	assert.Equal(t, []string{"", "sig2"}, befores)
	assert.Equal(t, []int{10, 20, 80, 100}, rec.progress())
	assert.Equal(t, db.JobCompleted, rec.marks[len(rec.marks)-1].Status)

	require.Len(t, rec.events, 4)
	last := rec.events[3]
	assert.Equal(t, db.JobCompleted, last.Status)
	assert.Equal(t, 3, last.Transactions)
}

func TestIndexWalletWorkflow_EmptyHistory(t *testing.T) {
	env, rec := newWorkflowEnv(t)

	env.OnActivity(a.FetchHistory, mock.Anything, mock.Anything).Return(&db.RecordBatch{}, nil)
	env.OnActivity(a.AnalyzeWallet, mock.Anything, mock.Anything).Return(&AnalyzeWalletResult{}, nil)

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-2", WalletAddress: testWallet})

	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []int{10, 20, 80, 100}, rec.progress())
	env.AssertNotCalled(t, "WriteRecords", mock.Anything, mock.Anything)
}

func TestIndexWalletWorkflow_MaxPages(t *testing.T) {
	env, _ := newWorkflowEnv(t)

	calls := 0
	env.OnActivity(a.FetchHistory, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, in FetchHistoryInput) (*db.RecordBatch, error) {
			calls++
			return page("more", "sig"), nil
		})
	env.OnActivity(a.WriteRecords, mock.Anything, mock.Anything).Return(&WriteRecordsResult{Transactions: 1, Movements: 1}, nil)
	env.OnActivity(a.AnalyzeWallet, mock.Anything, mock.Anything).Return(&AnalyzeWalletResult{}, nil)

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-3", WalletAddress: testWallet, MaxPages: 3})

	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, calls)

	var result IndexWalletResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 3, result.Pages)
}

func TestIndexWalletWorkflow_FetchFails(t *testing.T) {
	env, rec := newWorkflowEnv(t)

	env.OnActivity(a.FetchHistory, mock.Anything, mock.Anything).Return(nil, errors.New("helius: unexpected status code 429"))

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-4", WalletAddress: testWallet})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	assert.Equal(t, []int{10, 0}, rec.progress())
	failed := rec.marks[len(rec.marks)-1]
	assert.Equal(t, db.JobFailed, failed.Status)
	assert.Contains(t, failed.Error, "failed to fetch history")
	assert.Contains(t, failed.Error, "429")

	require.NotEmpty(t, rec.events)
	assert.Equal(t, db.JobFailed, rec.events[len(rec.events)-1].Status)
}

func TestIndexWalletWorkflow_AnalyzeFails(t *testing.T) {
	env, rec := newWorkflowEnv(t)

	env.OnActivity(a.FetchHistory, mock.Anything, mock.Anything).Return(page("", "sig1"), nil)
	env.OnActivity(a.WriteRecords, mock.Anything, mock.Anything).Return(&WriteRecordsResult{Transactions: 1, Movements: 1}, nil)
	env.OnActivity(a.AnalyzeWallet, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-5", WalletAddress: testWallet})

	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, []int{10, 20, 80, 0}, rec.progress())
}

func TestIndexWalletWorkflow_PublishFailureIsNotFatal(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.MarkJob)
	env.RegisterActivity(activities.FetchHistory)
	env.RegisterActivity(activities.WriteRecords)
	env.RegisterActivity(activities.AnalyzeWallet)
	env.RegisterActivity(activities.PublishJobEvent)

	rec := &jobRecorder{}
	env.OnActivity(activities.MarkJob, mock.Anything, mock.Anything).Return(rec.markJob)
	env.OnActivity(activities.PublishJobEvent, mock.Anything, mock.Anything).Return(errors.New("nats down"))
	env.OnActivity(activities.FetchHistory, mock.Anything, mock.Anything).Return(&db.RecordBatch{}, nil)
	env.OnActivity(activities.AnalyzeWallet, mock.Anything, mock.Anything).Return(&AnalyzeWalletResult{}, nil)

	env.ExecuteWorkflow(IndexWalletWorkflow, IndexWalletInput{JobID: "job-6", WalletAddress: testWallet})

	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []int{10, 20, 80, 100}, rec.progress())
}
