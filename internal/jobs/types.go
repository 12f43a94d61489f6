package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed. Failed pages are not retried.
	JobStatusFailed JobStatus = "failed"
)

// PersistPageJob tracks the persistence of one fetched page.
type PersistPageJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// RunID identifies the run the page belongs to.
	RunID string `json:"run_id"`

	// PageNumber is the 1-based position of the page in the result set.
	PageNumber int `json:"page_number"`

	// Rows is the number of transaction details on the page.
	Rows int `json:"rows"`

	// Persisted is the number of transactions written, set on completion.
	Persisted int `json:"persisted"`

	// CallerRan is true when the pool was saturated and the submitting
	// goroutine ran the job itself.
	CallerRan bool `json:"caller_ran,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was submitted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Executor runs tasks asynchronously.
type Executor interface {
	// Submit schedules task. Implementations may run it on the calling
	// goroutine when saturated.
	Submit(task func()) error

	// Shutdown stops accepting tasks and waits for the submitted ones.
	Shutdown(ctx context.Context) error
}

// JobStore defines the interface for storing and retrieving page job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *PersistPageJob) error

	// ListJobs retrieves jobs with optional filtering, ordered by page number.
	ListJobs(ctx context.Context, filter JobFilter) ([]*PersistPageJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// RunID filters jobs by run.
	RunID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
