// Package schema validates protocols and job events before they leave the
// pipeline.
package schema

import (
	"errors"
	"fmt"
	"math"

	"meeting-protocol-service/internal/models"
)

// Validator checks structural invariants of pipeline output.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// ValidateProtocol enforces start < end, non-negative times and
// non-decreasing start across the sequence.
func (v *Validator) ValidateProtocol(segments []models.TranscriptSegment) error {
	prevStart := math.Inf(-1)
	for i, s := range segments {
		if math.IsNaN(s.Start) || math.IsNaN(s.End) {
			return fmt.Errorf("segment %d: non-numeric time", i)
		}
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("segment %d: negative time (%.2f, %.2f)", i, s.Start, s.End)
		}
		if s.Start >= s.End {
			return fmt.Errorf("segment %d: start %.2f is not before end %.2f", i, s.Start, s.End)
		}
		if s.Start < prevStart {
			return fmt.Errorf("segment %d: start %.2f precedes previous start %.2f", i, s.Start, prevStart)
		}
		prevStart = s.Start
	}
	return nil
}

// Validate checks the envelope fields of a published event.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.JobStatusEvent:
		if ev.EventType == "" || ev.JobID == "" {
			return errors.New("job status event requires eventType and jobId")
		}
		if ev.Status == "" {
			return errors.New("job status event requires status")
		}
	case models.JobSummaryEvent:
		if ev.EventType == "" || ev.JobID == "" {
			return errors.New("job summary event requires eventType and jobId")
		}
	default:
		return fmt.Errorf("unsupported event type %T", event)
	}
	return nil
}
