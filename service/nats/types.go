package nats

import (
	"time"

	"github.com/brojonat/vialytics/service/db"
)

// JobEvent is published to "jobs.{wallet_address}" whenever an index job
// changes status or progress.
type JobEvent struct {
	JobID         string       `json:"job_id"`
	WalletAddress string       `json:"wallet_address"`
	Status        db.JobStatus `json:"status"`
	Progress      int          `json:"progress"`
	Error         string       `json:"error,omitempty"`

	// Counts are filled once records have been written.
	Transactions int `json:"transactions,omitempty"`
	Movements    int `json:"movements,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromJob converts a job status record to an event.
func FromJob(job *db.Job) *JobEvent {
	event := &JobEvent{
		JobID:         job.ID,
		WalletAddress: job.WalletAddress,
		Status:        job.Status,
		Progress:      job.Progress,
		PublishedAt:   time.Now().UTC(),
	}
	if job.Error != nil {
		event.Error = *job.Error
	}
	return event
}

// Subject returns the subject events for wallet are published on.
func Subject(wallet string) string {
	return SubjectPrefix + wallet
}
