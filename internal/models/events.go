package models

// Event types published on the job topics.
const (
	EventTypeJobStatus  = "job.status"
	EventTypeJobSummary = "job.summary"
)

// JobStatusEvent is emitted on submission and on every terminal transition.
type JobStatusEvent struct {
	EventType string    `json:"eventType"`
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Segments  int       `json:"segments,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// JobSummaryEvent is emitted when a summary has been written to a job result.
type JobSummaryEvent struct {
	EventType string `json:"eventType"`
	JobID     string `json:"jobId"`
	Backend   string `json:"backend"`
	Summary   string `json:"summary"`
	Timestamp int64  `json:"timestamp"`
}
