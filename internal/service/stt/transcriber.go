// Package stt defines the batch speech-to-text collaborator used by the
// pipeline.
package stt

import (
	"context"
	"strings"

	"meeting-protocol-service/internal/models"
)

// Transcriber converts a canonical WAV recording into text. Implementations
// return word timestamps when the backend provides them and whole text
// otherwise. Failures are returned as models.TranscriptionError.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath, modelSize string) (models.Transcription, error)
}

// DefaultModelSize is used when a submission names no model size.
const DefaultModelSize = "base"

var modelSizes = map[string]bool{
	"tiny":     true,
	"base":     true,
	"small":    true,
	"medium":   true,
	"large":    true,
	"large-v1": true,
	"large-v2": true,
	"large-v3": true,
	"turbo":    true,
}

// ValidModelSize reports whether size is a known whisper model size. English
// only variants carry a ".en" suffix and exist up to medium.
func ValidModelSize(size string) bool {
	if base, ok := strings.CutSuffix(size, ".en"); ok {
		switch base {
		case "tiny", "base", "small", "medium":
			return true
		}
		return false
	}
	return modelSizes[size]
}
