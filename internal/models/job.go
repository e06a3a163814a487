package models

import "time"

// JobStatus is the persisted lifecycle state of a job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the status record of one submitted recording.
type Job struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobResult is written once when a job completes. Afterwards only the
// summary fields change.
type JobResult struct {
	JobID          string              `json:"job_id"`
	Status         JobStatus           `json:"status"`
	Protocol       []TranscriptSegment `json:"protocol"`
	Summary        *string             `json:"summary"`
	SummaryBackend string              `json:"summary_backend,omitempty"`
	WordTimestamps bool                `json:"word_timestamps"`
}

// Submission is the unit of work handed from the jobs service to a worker.
type Submission struct {
	JobID     string
	AudioPath string
	ModelSize string
}
