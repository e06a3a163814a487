package audio

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

// fakeExecutor records the call and writes the output file ffmpeg would write.
type fakeExecutor struct {
	name string
	args []string
	err  error
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	f.name = name
	f.args = args
	if f.err != nil {
		return "", f.err
	}
	out := args[len(args)-1]
	return "", os.WriteFile(out, []byte("RIFF"), 0o644)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalize_WAVPassesThrough(t *testing.T) {
	exec := &fakeExecutor{}
	n := NewFFmpegNormalizer(exec, Config{}, zerolog.Nop())
	in := writeFile(t, "meeting.WAV", []byte("RIFF"))

	c, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Path != in || c.Converted {
		t.Errorf("expected pass-through handle, got %+v", c)
	}
	if exec.name != "" {
		t.Error("expected ffmpeg not to run for WAV input")
	}
	if err := c.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(in); err != nil {
		t.Error("cleanup of a pass-through handle must not remove the input")
	}
}

func TestNormalize_ConvertsWithFFmpeg(t *testing.T) {
	exec := &fakeExecutor{}
	n := NewFFmpegNormalizer(exec, Config{FFmpegPath: "/usr/bin/ffmpeg"}, zerolog.Nop())
	in := writeFile(t, "meeting.mp3", []byte("ID3"))

	c, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Converted || !strings.HasSuffix(c.Path, "meeting_16k.wav") {
		t.Errorf("unexpected handle %+v", c)
	}
	if exec.name != "/usr/bin/ffmpeg" {
		t.Errorf("expected configured ffmpeg path, got %s", exec.name)
	}
	joined := strings.Join(exec.args, " ")
	for _, want := range []string{"-ar 16000", "-ac 1", "-c:a pcm_s16le"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in args %q", want, joined)
		}
	}

	if err := c.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected converted file to be removed")
	}
}

func TestNormalize_ConversionErrors(t *testing.T) {
	tests := []struct {
		name  string
		input func(t *testing.T) string
		exec  *fakeExecutor
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.mp3") }, &fakeExecutor{}},
		{"empty", func(t *testing.T) string { return writeFile(t, "empty.mp3", nil) }, &fakeExecutor{}},
		{"ffmpeg fails", func(t *testing.T) string { return writeFile(t, "bad.ogg", []byte("junk")) },
			&fakeExecutor{err: errors.New("invalid data found when processing input")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewFFmpegNormalizer(tt.exec, Config{}, zerolog.Nop())
			_, err := n.Normalize(context.Background(), tt.input(t))
			if !models.IsStage(err, models.StageConversion) {
				t.Errorf("expected conversion error, got %v", err)
			}
		})
	}
}
