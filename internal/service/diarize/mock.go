package diarize

import (
	"context"
	"fmt"
	"os"

	"meeting-protocol-service/internal/models"
)

// DefaultTurns matches the conversation produced by the mock transcriber.
var DefaultTurns = []models.SpeakerTurn{
	{Speaker: "SPEAKER_00", Start: 0.0, End: 3.2},
	{Speaker: "SPEAKER_01", Start: 3.2, End: 5.5},
}

// Mock returns fixed turns for any existing file.
type Mock struct {
	Turns []models.SpeakerTurn
	Err   error
}

// NewMock creates a Mock with DefaultTurns.
func NewMock() *Mock {
	return &Mock{Turns: DefaultTurns}
}

// Diarize implements Diarizer.
func (m *Mock) Diarize(ctx context.Context, wavPath string) ([]models.SpeakerTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.DiarizationError(err)
	}
	if m.Err != nil {
		return nil, models.DiarizationError(m.Err)
	}
	if _, err := os.Stat(wavPath); err != nil {
		return nil, models.DiarizationError(fmt.Errorf("open audio: %w", err))
	}
	turns := append([]models.SpeakerTurn(nil), m.Turns...)
	sortTurns(turns)
	return turns, nil
}
