package summarize

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"meeting-protocol-service/internal/models"
)

// HuggingFace calls the hosted inference API of a summarization model.
type HuggingFace struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHuggingFace creates the hosted summarization backend.
func NewHuggingFace(baseURL, apiKey string, timeout time.Duration) *HuggingFace {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	return &HuggingFace{
		client:  newHTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (h *HuggingFace) Name() string { return APIHuggingFace }

type hfParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

// Generate returns summary_text of the first result.
func (h *HuggingFace) Generate(ctx context.Context, model, prompt string) (string, error) {
	if h.apiKey == "" {
		return "", models.NewConfigurationError("HUGGINGFACE_API_KEY is not set")
	}

	payload := map[string]any{
		"inputs":     prompt,
		"parameters": hfParameters{MaxLength: 512, MinLength: 50, DoSample: false},
	}

	var result []struct {
		SummaryText string `json:"summary_text"`
	}
	if err := postJSON(ctx, h.client, APIHuggingFace, h.baseURL+"/models/"+model, h.apiKey, payload, &result); err != nil {
		return "", err
	}

	if len(result) == 0 || result[0].SummaryText == "" {
		return "", &models.SummarizationError{Backend: APIHuggingFace, Err: errors.New("response has no summary_text")}
	}
	return strings.TrimSpace(result[0].SummaryText), nil
}
