// Package diarize provides speaker diarization collaborators.
package diarize

import (
	"context"
	"sort"

	"meeting-protocol-service/internal/models"
)

// Diarizer splits a canonical WAV recording into speaker turns ordered by
// start time. Failures are returned as models.DiarizationError.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath string) ([]models.SpeakerTurn, error)
}

// sortTurns orders turns by start, then end, keeping the backend's order
// for ties.
func sortTurns(turns []models.SpeakerTurn) {
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].Start != turns[j].Start {
			return turns[i].Start < turns[j].Start
		}
		return turns[i].End < turns[j].End
	})
}
