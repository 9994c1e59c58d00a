package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further progress updates will follow.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks the progress of indexing one wallet.
type Job struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UpdateJobParams carries the fields of a progress update.
type UpdateJobParams struct {
	ID       string
	Status   JobStatus
	Progress int
	Error    *string
}

// CreateJob inserts a pending job for wallet.
func (s *Store) CreateJob(ctx context.Context, id, wallet string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO index_jobs (id, wallet_address, status, progress)
		VALUES ($1, $2, $3, 0)
		RETURNING id, wallet_address, status, progress, error, created_at, updated_at`,
		id, wallet, string(JobPending))
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// UpdateJob records a status and progress change.
func (s *Store) UpdateJob(ctx context.Context, params UpdateJobParams) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE index_jobs
		SET status = $2, progress = $3, error = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, wallet_address, status, progress, error, created_at, updated_at`,
		params.ID, string(params.Status), params.Progress, pgtextFromStringPtr(params.Error))
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

// GetJob returns a job by id, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, status, progress, error, created_at, updated_at
		FROM index_jobs
		WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j         Job
		status    string
		errText   pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&j.ID, &j.WalletAddress, &status, &j.Progress, &errText, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.Error = stringPtrFromPgtext(errText)
	j.CreatedAt = createdAt.Time
	j.UpdatedAt = updatedAt.Time
	return &j, nil
}
