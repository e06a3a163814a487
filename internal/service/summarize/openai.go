package summarize

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"meeting-protocol-service/internal/models"
)

// OpenAI calls an OpenAI-compatible chat completions API.
type OpenAI struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	systemPrompt string
}

// NewOpenAI creates the chat completions backend.
func NewOpenAI(baseURL, apiKey, systemPrompt string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		client:       newHTTPClient(timeout),
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		systemPrompt: systemPrompt,
	}
}

func (o *OpenAI) Name() string { return APIOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends the system prompt and the rendered prompt as one chat turn.
func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (string, error) {
	if o.apiKey == "" {
		return "", models.NewConfigurationError("OPENAI_API_KEY is not set")
	}

	messages := make([]chatMessage, 0, 2)
	if o.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: o.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, APIOpenAI, o.baseURL+"/chat/completions", o.apiKey, payload, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", &models.SummarizationError{Backend: APIOpenAI, Err: errors.New("no choices in response")}
	}
	summary := strings.TrimSpace(result.Choices[0].Message.Content)
	if summary == "" {
		return "", &models.SummarizationError{Backend: APIOpenAI, Err: errors.New("empty response")}
	}
	return summary, nil
}
