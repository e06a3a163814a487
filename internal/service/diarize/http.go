package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

// HTTPConfig holds settings for the diarization sidecar.
type HTTPConfig struct {
	// URL is the sidecar base URL; turns are requested from {URL}/diarize.
	URL string
	// Token is the Hugging Face access token forwarded to the sidecar so it
	// can load the gated pyannote pipeline.
	Token   string
	Timeout time.Duration
}

// HTTPDiarizer posts the recording to a pyannote sidecar service.
type HTTPDiarizer struct {
	cfg    HTTPConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPDiarizer creates a sidecar client.
func NewHTTPDiarizer(cfg HTTPConfig, logger zerolog.Logger) *HTTPDiarizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &HTTPDiarizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "diarizer").Logger(),
	}
}

type sidecarResponse struct {
	Segments []models.SpeakerTurn `json:"segments"`
}

// Diarize implements Diarizer. A missing token or URL fails before any
// request is made.
func (d *HTTPDiarizer) Diarize(ctx context.Context, wavPath string) ([]models.SpeakerTurn, error) {
	if d.cfg.Token == "" {
		return nil, models.DiarizationError(errors.New("HUGGINGFACE_API_KEY is not set"))
	}
	if d.cfg.URL == "" {
		return nil, models.DiarizationError(errors.New("DIARIZATION_URL is not set"))
	}

	body, contentType, err := multipartAudio(wavPath)
	if err != nil {
		return nil, models.DiarizationError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL+"/diarize", body)
	if err != nil {
		return nil, models.DiarizationError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+d.cfg.Token)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, models.DiarizationError(fmt.Errorf("sidecar request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, models.DiarizationError(fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, models.DiarizationError(fmt.Errorf("decode sidecar response: %w", err))
	}
	for i, t := range out.Segments {
		if t.Speaker == "" || t.End <= t.Start || t.Start < 0 {
			return nil, models.DiarizationError(fmt.Errorf("sidecar turn %d is malformed: %+v", i, t))
		}
	}
	sortTurns(out.Segments)

	d.logger.Info().
		Int("turns", len(out.Segments)).
		Dur("duration", time.Since(start)).
		Msg("Diarization finished")

	return out.Segments, nil
}

func multipartAudio(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio_file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
