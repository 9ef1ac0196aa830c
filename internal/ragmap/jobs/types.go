// Package jobs provides single-flight management for ingestion and
// reachability runs.
package jobs

import (
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
)

// JobID uniquely identifies a job.
type JobID string

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job types. At most one job of each type runs at a time.
const (
	IngestJobType       = "ingest"
	ReachabilityJobType = "reachability"
)

// JobResult contains the final outcome of a job. Exactly one of the run
// payloads is set on success.
type JobResult struct {
	Ingest       *ingest.RunResult    `json:"ingest,omitempty"`
	Reachability *reach.RefreshResult `json:"reachability,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Job represents a triggered run with its lifecycle state.
type Job struct {
	ID        JobID      `json:"id"`
	Type      string     `json:"type"`
	Status    JobStatus  `json:"status"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
