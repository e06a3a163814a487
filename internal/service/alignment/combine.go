// Package alignment fuses diarized speaker turns with transcribed words into
// a speaker-attributed protocol.
package alignment

import (
	"strings"

	"meeting-protocol-service/internal/models"
)

// Combine assigns every word to the speaker turn containing its midpoint.
//
// Turn intervals are half-open, [start, end), so a word centred exactly on a
// shared boundary belongs to the later turn only. Turns keep their input
// order and are never dropped; a turn with no words gets an empty transcript.
//
// When the transcription has no word timing, the whole text is assigned
// verbatim to the first turn. Callers must record that word-level alignment
// was unavailable.
func Combine(turns []models.SpeakerTurn, tr models.Transcription) []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, len(turns))
	for i, turn := range turns {
		out[i] = models.TranscriptSegment{
			Speaker: turn.Speaker,
			Start:   turn.Start,
			End:     turn.End,
		}
	}

	if !tr.HasWordTimestamps() {
		// TODO: split whole-text output across turns by duration instead of
		// giving everything to the first speaker.
		if len(out) > 0 {
			out[0].Transcript = tr.Text
		}
		return out
	}

	for i := range out {
		var b strings.Builder
		for _, w := range tr.Words {
			mid := w.Midpoint()
			if out[i].Start <= mid && mid < out[i].End {
				b.WriteString(w.Text)
			}
		}
		out[i].Transcript = strings.TrimSpace(b.String())
	}
	return out
}
