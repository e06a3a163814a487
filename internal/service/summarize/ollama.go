package summarize

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"meeting-protocol-service/internal/models"
)

// Ollama calls a self-hosted generation endpoint.
type Ollama struct {
	client  *http.Client
	baseURL string
}

// NewOllama creates a backend for one endpoint URL.
func NewOllama(baseURL string, timeout time.Duration) *Ollama {
	return &Ollama{
		client:  newHTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (o *Ollama) Name() string { return APIOllama }

// Generate requests a single non-streamed completion.
func (o *Ollama) Generate(ctx context.Context, model, prompt string) (string, error) {
	if o.baseURL == "" {
		return "", models.NewConfigurationError("ollama URL is not set")
	}

	payload := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}

	var result struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := postJSON(ctx, o.client, APIOllama, o.baseURL+"/api/generate", "", payload, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", &models.SummarizationError{Backend: APIOllama, Err: errors.New(result.Error)}
	}

	summary := strings.TrimSpace(result.Response)
	if summary == "" {
		return "", &models.SummarizationError{Backend: APIOllama, Err: errors.New("empty response")}
	}
	return summary, nil
}
