package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"meeting-protocol-service/internal/config"
	"meeting-protocol-service/internal/executor"
	"meeting-protocol-service/internal/service/audio"
	"meeting-protocol-service/internal/service/diarize"
	"meeting-protocol-service/internal/service/stt"
	"meeting-protocol-service/internal/service/stt/google"
	"meeting-protocol-service/internal/service/stt/mock"
	"meeting-protocol-service/internal/service/stt/whisper"
	"meeting-protocol-service/internal/service/summarize"
)

func newNormalizer(cfg *config.Configuration, exec executor.Executor) audio.Normalizer {
	return audio.NewFFmpegNormalizer(exec, audio.Config{
		FFmpegPath:   cfg.Audio.FFmpegPath,
		SampleRateHz: cfg.Audio.SampleRateHz,
		Timeout:      cfg.Audio.Timeout,
	}, log.Logger)
}

func newDiarizer(cfg *config.Configuration) diarize.Diarizer {
	if cfg.Diarization.Provider == "http" {
		log.Info().Str("url", cfg.Diarization.URL).Msg("Using diarization sidecar")
		return diarize.NewHTTPDiarizer(diarize.HTTPConfig{
			URL:     cfg.Diarization.URL,
			Token:   cfg.Diarization.HuggingFaceToken,
			Timeout: cfg.Diarization.Timeout,
		}, log.Logger)
	}
	log.Warn().Msg("Using mock diarizer")
	return diarize.NewMock()
}

// newTranscriber returns the configured transcriber and a release function.
func newTranscriber(ctx context.Context, cfg *config.Configuration, exec executor.Executor) (stt.Transcriber, func(), error) {
	switch cfg.STT.Provider {
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.STT.LanguageCode
		gcfg.SampleRateHz = int32(cfg.Audio.SampleRateHz)
		gcfg.Model = cfg.STT.GoogleModel
		t, err := google.NewWithConfig(ctx, gcfg, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("language", gcfg.LanguageCode).Str("model", gcfg.Model).Msg("Using Google Speech-to-Text")
		return t, func() {
			if err := t.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close speech client")
			}
		}, nil
	case "whisper":
		log.Info().Str("binary", cfg.STT.WhisperBinary).Msg("Using whisper CLI")
		return whisper.New(exec, whisper.Config{
			BinaryPath: cfg.STT.WhisperBinary,
			Language:   whisperLanguage(cfg.STT.LanguageCode),
			Timeout:    cfg.STT.Timeout,
		}, log.Logger), func() {}, nil
	default:
		log.Warn().Msg("Using mock transcriber")
		return mock.New(), func() {}, nil
	}
}

// whisperLanguage maps a BCP-47 code such as "en-US" to whisper's "en".
func whisperLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}

func summarizeConfig(cfg *config.Configuration) summarize.Config {
	s := cfg.Summarization
	models := make(map[string]summarize.Model, len(s.Models))
	for id, spec := range s.Models {
		models[id] = summarize.Model{API: spec.API, ModelID: spec.ModelID}
	}
	return summarize.Config{
		PromptTemplate:     s.PromptTemplate,
		SystemPrompt:       s.SystemPrompt,
		Models:             models,
		OpenAIAPIKey:       s.OpenAIAPIKey,
		OpenAIBaseURL:      s.OpenAIBaseURL,
		HuggingFaceAPIKey:  s.HuggingFaceAPIKey,
		HuggingFaceBaseURL: s.HuggingFaceBaseURL,
		GeminiAPIKey:       s.GeminiAPIKey,
		GeminiBaseURL:      s.GeminiBaseURL,
		OllamaURL:          s.OllamaURL,
		OllamaDefaultModel: s.OllamaDefaultModel,
		Timeout:            s.Timeout,
	}
}
