package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown job identifiers.
var ErrNotFound = errors.New("job not found")

// Stage names a pipeline step.
type Stage string

const (
	StageConversion    Stage = "conversion"
	StageDiarization   Stage = "diarization"
	StageTranscription Stage = "transcription"
	StageAlignment     Stage = "alignment"
	StagePersistence   Stage = "persistence"
)

// StageError is a failure inside one pipeline stage. It is fatal to the job.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ConversionError reports unsupported or corrupt input audio.
func ConversionError(err error) error {
	return &StageError{Stage: StageConversion, Err: err}
}

// DiarizationError reports a diarization failure, including missing credentials.
func DiarizationError(err error) error {
	return &StageError{Stage: StageDiarization, Err: err}
}

// TranscriptionError reports a speech recognition failure.
func TranscriptionError(err error) error {
	return &StageError{Stage: StageTranscription, Err: err}
}

// AlignmentError reports a protocol that violates its invariants.
func AlignmentError(err error) error {
	return &StageError{Stage: StageAlignment, Err: err}
}

// IsStage reports whether err is a StageError for stage.
func IsStage(err error, stage Stage) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}

// SummarizationError is a failure of one summarization backend call. It does
// not affect the job's status.
type SummarizationError struct {
	Backend string
	Err     error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization backend %s: %v", e.Backend, e.Err)
}

func (e *SummarizationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing credential, URL or unknown backend.
// It is raised before any side effect happens.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
