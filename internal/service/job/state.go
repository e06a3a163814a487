// Package job provides job identifiers and the in-memory lifecycle state
// machine a worker uses while it owns a job.
package job

import (
	"errors"
	"sync"

	"meeting-protocol-service/internal/models"
)

// Errors for invalid lifecycle transitions.
var (
	ErrJobTerminal      = errors.New("job already reached a terminal state")
	ErrProgressBackward = errors.New("progress cannot decrease")
)

// Lifecycle tracks one job from submission to its single terminal state.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	processing ──Complete()──→ completed
//	     │
//	     └──────Fail()───────→ failed
//
// Rules:
//   - processing: progress may advance (0..99), Complete and Fail allowed once
//   - completed / failed: terminal, every transition returns ErrJobTerminal
type Lifecycle struct {
	mu       sync.RWMutex
	jobID    string
	status   models.JobStatus
	progress int
	message  string
}

// NewLifecycle creates a lifecycle in the processing state.
func NewLifecycle(jobID string) *Lifecycle {
	return &Lifecycle{
		jobID:   jobID,
		status:  models.JobStatusProcessing,
		message: "Upload successful",
	}
}

// JobID returns the job identifier.
func (l *Lifecycle) JobID() string {
	return l.jobID
}

// Status returns the current status.
func (l *Lifecycle) Status() models.JobStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// IsTerminal returns true once the job completed or failed.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status.IsTerminal()
}

// Advance records stage progress. Progress is clamped to 0..99; 100 is
// reserved for Complete.
func (l *Lifecycle) Advance(progress int, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.IsTerminal() {
		return ErrJobTerminal
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 99 {
		progress = 99
	}
	if progress < l.progress {
		return ErrProgressBackward
	}
	l.progress = progress
	l.message = message
	return nil
}

// Complete transitions to completed with progress 100.
func (l *Lifecycle) Complete(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.IsTerminal() {
		return ErrJobTerminal
	}
	l.status = models.JobStatusCompleted
	l.progress = 100
	l.message = message
	return nil
}

// Fail transitions to failed. Progress keeps its last value.
func (l *Lifecycle) Fail(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.IsTerminal() {
		return ErrJobTerminal
	}
	l.status = models.JobStatusFailed
	l.message = message
	return nil
}

// Snapshot returns the status record for the current state. Timestamps are
// left for the caller to fill.
func (l *Lifecycle) Snapshot() models.Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.Job{
		JobID:    l.jobID,
		Status:   l.status,
		Progress: l.progress,
		Message:  l.message,
	}
}
