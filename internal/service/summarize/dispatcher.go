// Package summarize turns a speaker-attributed protocol into a summary using
// one of several text generation backends.
package summarize

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/metrics"
)

// Backend API names used in the model registry.
const (
	APIOpenAI      = "openai"
	APIHuggingFace = "huggingface"
	APIGemini      = "gemini"
	APIOllama      = "ollama"
)

// Backend generates a summary for a fully rendered prompt.
type Backend interface {
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Model is one entry of the model registry.
type Model struct {
	API     string
	ModelID string
}

// Options carry per-request settings for the self-hosted backend.
type Options struct {
	// URL selects the self-hosted generation endpoint for this call.
	URL string
	// Model overrides the self-hosted default model.
	Model string
}

// Config holds dispatcher settings and backend credentials.
type Config struct {
	PromptTemplate     string
	SystemPrompt       string
	Models             map[string]Model
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	GeminiAPIKey       string
	GeminiBaseURL      string
	OllamaURL          string
	OllamaDefaultModel string
	Timeout            time.Duration
}

// Dispatcher selects a backend per request and renders the prompt. It knows
// nothing about jobs or storage.
type Dispatcher struct {
	prompt             *promptTemplate
	models             map[string]Model
	backends           map[string]Backend
	ollamaURL          string
	ollamaDefaultModel string
	timeout            time.Duration
	metrics            *metrics.Metrics
	logger             zerolog.Logger
}

// New creates a Dispatcher with the built-in backends. A template without
// the {transcript} placeholder is a ConfigurationError.
func New(cfg Config, m *metrics.Metrics, logger zerolog.Logger) (*Dispatcher, error) {
	prompt, err := newPromptTemplate(cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.OllamaDefaultModel == "" {
		cfg.OllamaDefaultModel = "llama3"
	}

	d := &Dispatcher{
		prompt:             prompt,
		models:             make(map[string]Model, len(cfg.Models)),
		ollamaURL:          cfg.OllamaURL,
		ollamaDefaultModel: cfg.OllamaDefaultModel,
		timeout:            cfg.Timeout,
		metrics:            m,
		logger:             logger.With().Str("component", "summarizer").Logger(),
	}
	for id, model := range cfg.Models {
		d.models[id] = model
	}
	d.backends = map[string]Backend{
		APIOpenAI:      NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.SystemPrompt, cfg.Timeout),
		APIHuggingFace: NewHuggingFace(cfg.HuggingFaceBaseURL, cfg.HuggingFaceAPIKey, cfg.Timeout),
		APIGemini:      NewGemini(cfg.GeminiAPIKey, cfg.GeminiBaseURL),
	}
	return d, nil
}

// Register adds or replaces the backend serving api. Used for backends that
// are not built in.
func (d *Dispatcher) Register(api string, b Backend) {
	d.backends[api] = b
}

// Models returns the identifiers accepted as backendID besides "ollama".
func (d *Dispatcher) Models() []string {
	ids := make([]string, 0, len(d.models))
	for id := range d.models {
		ids = append(ids, id)
	}
	return ids
}

// target is a resolved backend call.
type target struct {
	backend Backend
	model   string
}

// resolve picks the backend without contacting it.
//
// backendID "ollama" or a non-empty opts.URL selects the self-hosted
// endpoint. Anything else must name a registry entry.
func (d *Dispatcher) resolve(backendID string, opts Options) (target, error) {
	if backendID == APIOllama || opts.URL != "" {
		url := opts.URL
		if url == "" {
			url = d.ollamaURL
		}
		if url == "" {
			return target{}, models.NewConfigurationError("self-hosted summarization needs ollama_url")
		}
		model := opts.Model
		if model == "" {
			model = d.ollamaDefaultModel
		}
		return target{backend: NewOllama(url, d.timeout), model: model}, nil
	}

	entry, ok := d.models[backendID]
	if !ok {
		return target{}, models.NewConfigurationError("unknown summarization model %q", backendID)
	}
	b, ok := d.backends[strings.ToLower(entry.API)]
	if !ok {
		return target{}, models.NewConfigurationError("model %q uses unsupported api %q", backendID, entry.API)
	}
	return target{backend: b, model: entry.ModelID}, nil
}

// Summarize renders the protocol into the prompt template and calls the
// selected backend. Errors are ConfigurationError (nothing was contacted)
// or SummarizationError.
func (d *Dispatcher) Summarize(ctx context.Context, protocol []models.TranscriptSegment, backendID string, opts Options) (string, error) {
	t, err := d.resolve(backendID, opts)
	if err != nil {
		return "", err
	}

	prompt := d.prompt.render(FormatProtocol(protocol))

	start := time.Now()
	summary, err := t.backend.Generate(ctx, t.model, prompt)
	d.metrics.RecordSummary(t.backend.Name(), err, time.Since(start).Seconds())
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("backend", t.backend.Name()).
			Str("model", t.model).
			Msg("Summarization failed")
		return "", err
	}

	d.logger.Info().
		Str("backend", t.backend.Name()).
		Str("model", t.model).
		Int("promptChars", len(prompt)).
		Dur("duration", time.Since(start)).
		Msg("Summary generated")

	return summary, nil
}
