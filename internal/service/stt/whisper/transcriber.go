// Package whisper runs the openai-whisper command line tool and reads its
// JSON output, which carries word timestamps.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/executor"
	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/service/stt"
)

// Config holds whisper CLI settings.
type Config struct {
	BinaryPath string
	// Language is passed as --language when set; otherwise whisper detects it.
	Language string
	Timeout  time.Duration
}

// Transcriber implements stt.Transcriber with the whisper CLI.
type Transcriber struct {
	exec   executor.Executor
	cfg    Config
	logger zerolog.Logger
}

// New creates a whisper transcriber.
func New(exec executor.Executor, cfg Config, logger zerolog.Logger) *Transcriber {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "whisper"
	}
	return &Transcriber{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("sttProvider", "whisper").Logger(),
	}
}

// output mirrors the subset of whisper's JSON writer we read.
type output struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe runs whisper into a private temp directory and parses the
// resulting <name>.json.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath, modelSize string) (models.Transcription, error) {
	if modelSize == "" {
		modelSize = stt.DefaultModelSize
	}
	if !stt.ValidModelSize(modelSize) {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("unknown model size %q", modelSize))
	}

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("create output dir: %w", err))
	}
	defer os.RemoveAll(outDir)

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	args := []string{
		wavPath,
		"--model", modelSize,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		"--verbose", "False",
	}
	if t.cfg.Language != "" {
		args = append(args, "--language", t.cfg.Language)
	}

	start := time.Now()
	if _, err := t.exec.Execute(ctx, t.cfg.BinaryPath, args...); err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("whisper: %w", err))
	}

	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("read whisper output: %w", err))
	}

	tr, err := parseOutput(data)
	if err != nil {
		return models.Transcription{}, models.TranscriptionError(err)
	}

	t.logger.Info().
		Str("modelSize", modelSize).
		Int("words", len(tr.Words)).
		Str("language", tr.Language).
		Dur("duration", time.Since(start)).
		Msg("Whisper transcription finished")

	return tr, nil
}

// parseOutput flattens segment words. Word texts keep whisper's leading
// space.
func parseOutput(data []byte) (models.Transcription, error) {
	var out output
	if err := json.Unmarshal(data, &out); err != nil {
		return models.Transcription{}, fmt.Errorf("parse whisper output: %w", err)
	}

	tr := models.Transcription{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
	}
	for _, seg := range out.Segments {
		for _, w := range seg.Words {
			tr.Words = append(tr.Words, models.Word{Text: w.Word, Start: w.Start, End: w.End})
		}
	}
	return tr, nil
}
