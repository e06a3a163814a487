// Package models defines the job, transcript and event data structures.
package models

// SpeakerTurn is one diarized speaker interval, in seconds.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Word is a transcribed token with its timing. Tokens carry their own
// leading whitespace, so concatenating them reproduces the spoken text.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Midpoint returns the time halfway through the word.
func (w Word) Midpoint() float64 {
	return (w.Start + w.End) / 2
}

// Transcription is the output of a speech recognizer. Words is empty when
// the recognizer produced only whole-text output.
type Transcription struct {
	Words    []Word `json:"words,omitempty"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// HasWordTimestamps reports whether per-word timing is available.
func (t Transcription) HasWordTimestamps() bool {
	return len(t.Words) > 0
}

// TranscriptSegment is one speaker turn of the final protocol.
type TranscriptSegment struct {
	Speaker    string  `json:"speaker"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Transcript string  `json:"transcript"`
}
