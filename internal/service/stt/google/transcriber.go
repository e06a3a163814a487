// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

// Config holds Google Speech-to-Text configuration.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32
	AudioEncoding string
	Model         string
}

// DefaultConfig returns the settings for the canonical 16 kHz mono WAV.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
		Model:         "latest_long",
	}
}

// parseAudioEncoding converts string encoding to protobuf enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// recognizer runs one long-running recognition to completion.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
}

type clientRecognizer struct {
	client *speech.Client
}

func (c *clientRecognizer) Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := c.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

// Transcriber implements stt.Transcriber using Google Cloud Speech-to-Text.
// The model size of a submission is ignored; the recognition model comes
// from Config.Model.
type Transcriber struct {
	client *speech.Client
	rec    recognizer
	cfg    Config
	logger zerolog.Logger
}

// New creates a Google transcriber with default configuration.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, logger zerolog.Logger) (*Transcriber, error) {
	return NewWithConfig(ctx, DefaultConfig(), logger)
}

// NewWithConfig creates a Google transcriber with custom configuration.
func NewWithConfig(ctx context.Context, cfg Config, logger zerolog.Logger) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Transcriber{
		client: c,
		rec:    &clientRecognizer{client: c},
		cfg:    cfg,
		logger: logger.With().Str("sttProvider", "google").Logger(),
	}, nil
}

// Transcribe sends the recording inline and waits for the operation.
// TODO: upload recordings over the 10 MB inline limit to Cloud Storage and pass a gs:// URI.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath, modelSize string) (models.Transcription, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("read audio: %w", err))
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(t.cfg.AudioEncoding),
			SampleRateHertz:            t.cfg.SampleRateHz,
			LanguageCode:               t.cfg.LanguageCode,
			Model:                      t.cfg.Model,
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	t.logger.Debug().
		Str("languageCode", t.cfg.LanguageCode).
		Str("model", t.cfg.Model).
		Str("requestedModelSize", modelSize).
		Int("audioBytes", len(audio)).
		Msg("Starting long-running recognition")

	resp, err := t.rec.Recognize(ctx, req)
	if err != nil {
		return models.Transcription{}, models.TranscriptionError(fmt.Errorf("google recognize: %w", err))
	}
	return toTranscription(resp)
}

// toTranscription flattens all results. Each word is prefixed with a space
// so that concatenating word texts yields readable text.
func toTranscription(resp *speechpb.LongRunningRecognizeResponse) (models.Transcription, error) {
	if resp == nil {
		return models.Transcription{}, models.TranscriptionError(errors.New("google recognize: empty response"))
	}

	var tr models.Transcription
	var texts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		if s := strings.TrimSpace(alt.GetTranscript()); s != "" {
			texts = append(texts, s)
		}
		if tr.Language == "" {
			tr.Language = r.GetLanguageCode()
		}
		for _, w := range alt.GetWords() {
			tr.Words = append(tr.Words, models.Word{
				Text:  " " + w.GetWord(),
				Start: w.GetStartTime().AsDuration().Seconds(),
				End:   w.GetEndTime().AsDuration().Seconds(),
			})
		}
	}
	tr.Text = strings.Join(texts, " ")
	return tr, nil
}

// Close releases the underlying client.
func (t *Transcriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
