// Package mock provides a scripted transcriber for running the service
// without cloud credentials or a local whisper install.
package mock

import (
	"context"
	"fmt"
	"os"
	"strings"

	"meeting-protocol-service/internal/models"
)

// DefaultWords is a short two-speaker exchange with word timestamps.
var DefaultWords = []models.Word{
	{Text: " Good", Start: 0.2, End: 0.5},
	{Text: " morning", Start: 0.5, End: 0.9},
	{Text: " everyone.", Start: 0.9, End: 1.4},
	{Text: " Let's", Start: 1.6, End: 1.9},
	{Text: " start", Start: 1.9, End: 2.2},
	{Text: " with", Start: 2.2, End: 2.4},
	{Text: " the", Start: 2.4, End: 2.5},
	{Text: " budget.", Start: 2.5, End: 3.0},
	{Text: " Thanks,", Start: 3.4, End: 3.8},
	{Text: " I", Start: 3.9, End: 4.0},
	{Text: " have", Start: 4.0, End: 4.2},
	{Text: " the", Start: 4.2, End: 4.3},
	{Text: " numbers", Start: 4.3, End: 4.8},
	{Text: " here.", Start: 4.8, End: 5.2},
}

// Transcriber returns a fixed transcription for any existing input file.
type Transcriber struct {
	Words []models.Word
	// WholeText switches to a backend without word timestamps.
	WholeText bool
	Language  string
	// Err, when set, is returned wrapped as a TranscriptionError.
	Err error
}

// New creates a mock transcriber with DefaultWords.
func New() *Transcriber {
	return &Transcriber{Words: DefaultWords, Language: "en"}
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath, modelSize string) (models.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcription{}, models.TranscriptionError(err)
	}
	if t.Err != nil {
		return models.Transcription{}, models.TranscriptionError(t.Err)
	}
	if _, err := os.Stat(wavPath); err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("open audio: %w", err))
	}

	var sb strings.Builder
	for _, w := range t.Words {
		sb.WriteString(w.Text)
	}
	tr := models.Transcription{
		Text:     strings.TrimSpace(sb.String()),
		Language: t.Language,
	}
	if !t.WholeText {
		tr.Words = append([]models.Word(nil), t.Words...)
	}
	return tr, nil
}
