// Package audio converts uploaded recordings into the canonical form the
// diarization and transcription collaborators expect: 16 kHz mono PCM WAV.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/executor"
	"meeting-protocol-service/internal/models"
)

// Canonical is a handle to a normalized recording.
type Canonical struct {
	Path string
	// Converted is true when Path is a file the normalizer created.
	Converted bool
}

// Cleanup removes the converted file. Pass-through handles are left alone
// because their file belongs to the caller.
func (c Canonical) Cleanup() error {
	if !c.Converted || c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Normalizer turns an input recording into a Canonical WAV.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (Canonical, error)
}

// Config holds FFmpegNormalizer settings.
type Config struct {
	FFmpegPath   string
	SampleRateHz int
	Timeout      time.Duration
}

// FFmpegNormalizer converts with ffmpeg. Files with a .wav extension are
// passed through unchanged.
type FFmpegNormalizer struct {
	exec   executor.Executor
	cfg    Config
	logger zerolog.Logger
}

// NewFFmpegNormalizer creates a normalizer. Zero config values get defaults.
func NewFFmpegNormalizer(exec executor.Executor, cfg Config, logger zerolog.Logger) *FFmpegNormalizer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 16000
	}
	return &FFmpegNormalizer{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "audio-normalizer").Logger(),
	}
}

// Normalize returns a ConversionError for missing, empty or undecodable input.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, path string) (Canonical, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Canonical{}, models.ConversionError(fmt.Errorf("open input: %w", err))
	}
	if info.Size() == 0 {
		return Canonical{}, models.ConversionError(errors.New("input file is empty"))
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		n.logger.Debug().Str("path", path).Msg("WAV input, skipping conversion")
		return Canonical{Path: path}, nil
	}

	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "_16k.wav"
	// -vn drops video tracks so video containers are accepted as well
	args := []string{
		"-nostdin",
		"-i", path,
		"-vn",
		"-ar", strconv.Itoa(n.cfg.SampleRateHz),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		out,
	}

	start := time.Now()
	if _, err := n.exec.Execute(ctx, n.cfg.FFmpegPath, args...); err != nil {
		os.Remove(out)
		return Canonical{}, models.ConversionError(fmt.Errorf("ffmpeg: %w", err))
	}

	n.logger.Info().
		Str("input", filepath.Base(path)).
		Dur("duration", time.Since(start)).
		Msg("Audio converted")

	return Canonical{Path: out, Converted: true}, nil
}
