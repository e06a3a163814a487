package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

const sampleOutput = `{
  "text": " Hello there. General Kenobi.",
  "language": "en",
  "segments": [
    {"start": 0.0, "end": 1.2, "text": " Hello there.", "words": [
      {"word": " Hello", "start": 0.0, "end": 0.5, "probability": 0.9},
      {"word": " there.", "start": 0.5, "end": 1.2, "probability": 0.8}
    ]},
    {"start": 2.0, "end": 3.1, "text": " General Kenobi.", "words": [
      {"word": " General", "start": 2.0, "end": 2.4, "probability": 0.9},
      {"word": " Kenobi.", "start": 2.4, "end": 3.1, "probability": 0.7}
    ]}
  ]
}`

// fakeExecutor writes a canned JSON file into the --output_dir argument.
type fakeExecutor struct {
	args   []string
	output string
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	f.args = args
	if f.err != nil {
		return "", f.err
	}
	var dir string
	for i, a := range args {
		if a == "--output_dir" {
			dir = args[i+1]
		}
	}
	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	return "", os.WriteFile(filepath.Join(dir, base+".json"), []byte(f.output), 0o644)
}

func TestTranscribe_ParsesWords(t *testing.T) {
	exec := &fakeExecutor{output: sampleOutput}
	tr, err := New(exec, Config{Language: "en"}, zerolog.Nop()).
		Transcribe(context.Background(), "/tmp/meeting_16k.wav", "small.en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tr.Words) != 4 {
		t.Fatalf("expected 4 words, got %d", len(tr.Words))
	}
	if tr.Words[2].Text != " General" || tr.Words[2].Start != 2.0 {
		t.Errorf("unexpected word %+v", tr.Words[2])
	}
	if tr.Text != "Hello there. General Kenobi." {
		t.Errorf("unexpected text %q", tr.Text)
	}
	joined := strings.Join(exec.args, " ")
	for _, want := range []string{"--model small.en", "--word_timestamps True", "--language en"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %q", want, joined)
		}
	}
}

func TestTranscribe_DefaultModelSize(t *testing.T) {
	exec := &fakeExecutor{output: sampleOutput}
	if _, err := New(exec, Config{}, zerolog.Nop()).Transcribe(context.Background(), "/tmp/a.wav", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(strings.Join(exec.args, " "), "--model base") {
		t.Errorf("expected base model, got %v", exec.args)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name string
		exec *fakeExecutor
		size string
	}{
		{"unknown size", &fakeExecutor{output: sampleOutput}, "gigantic"},
		{"command fails", &fakeExecutor{err: errors.New("exit status 1")}, "base"},
		{"bad json", &fakeExecutor{output: "{not json"}, "base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.exec, Config{}, zerolog.Nop()).Transcribe(context.Background(), "/tmp/a.wav", tt.size)
			if !models.IsStage(err, models.StageTranscription) {
				t.Errorf("expected transcription error, got %v", err)
			}
		})
	}
}

func TestParseOutput_NoWords(t *testing.T) {
	tr, err := parseOutput([]byte(`{"text":" just text","segments":[{"start":0,"end":1,"text":" just text"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.HasWordTimestamps() {
		t.Error("expected no word timestamps")
	}
	if tr.Text != "just text" {
		t.Errorf("unexpected text %q", tr.Text)
	}
}
