// Package jobs tracks asynchronous import jobs and runs them on a single background worker.
package jobs

import (
	"errors"
	"time"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

// ErrJobNotFound is returned when no job exists with the requested id.
var ErrJobNotFound = errors.New("job not found")

// Status is a job lifecycle state.
type Status string

const (
	// StatusPending is a queued job.
	StatusPending Status = "pending"

	// StatusRunning is a job being processed by the worker.
	StatusRunning Status = "running"

	// StatusCompleted is a job that finished. Rows may still have failed individually.
	StatusCompleted Status = "completed"

	// StatusFailed is a job that errored or was aborted.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// abortedMessage is the error recorded on a job cancelled by its user.
const abortedMessage = "Job aborted by user"

// Job is one import of one file.
type Job struct {
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt is when the job was queued.
	CreatedAt time.Time `json:"created_at"`

	// DryRun indicates the import must not write to NationBuilder.
	DryRun bool `json:"dry_run"`

	// Error describes why the job failed.
	Error string `json:"error,omitempty"`

	// FileName is the base name of the input file.
	FileName string `json:"file_name"`

	// FilePath is the input file.
	FilePath string `json:"file_path"`

	// ID identifies the job.
	ID string `json:"id"`

	// ImportType is the adapter name, e.g. CanadaHelps.
	ImportType string `json:"import_type"`

	// NationSlug is the target nation.
	NationSlug string `json:"nation_slug"`

	// Progress is the percentage of rows handled.
	Progress int `json:"progress"`

	// QueuePosition is the 1-based position of a pending job in the queue. It is computed
	// when the job is read and never stored.
	QueuePosition int `json:"queue_position,omitempty"`

	// Result is set once the import ran.
	Result *Result `json:"result,omitempty"`

	// StartedAt is when the worker picked the job up.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Token is the OAuth token the job runs with. It is never serialized.
	Token *nationbuilder.Token `json:"-"`

	// UpdatedAt is the time of the last change.
	UpdatedAt time.Time `json:"updated_at"`

	// UserID identifies who created the job.
	UserID string `json:"user_id"`
}

// Result contains the outcome of a job's import.
type Result struct {
	// Failed is the number of failed rows.
	Failed int `json:"failed"`

	// FailFile is the fail CSV.
	FailFile string `json:"fail_file,omitempty"`

	// LogFile is the log extracted for the job.
	LogFile string `json:"log_file,omitempty"`

	// Skipped is the number of rows skipped by plugins.
	Skipped int `json:"skipped"`

	// Succeeded is the number of donations created.
	Succeeded int `json:"succeeded"`

	// SuccessFile is the success CSV.
	SuccessFile string `json:"success_file,omitempty"`

	// Total is the number of data rows.
	Total int `json:"total"`
}

// snapshot returns a copy of the job without its token.
func (j *Job) snapshot() *Job {
	c := *j
	c.Token = nil
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
