package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"meeting-protocol-service/internal/models"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	apiKey  string
	baseURL string
}

// NewGemini creates the Gemini backend. baseURL is empty outside tests.
func NewGemini(apiKey, baseURL string) *Gemini {
	return &Gemini{apiKey: apiKey, baseURL: baseURL}
}

func (g *Gemini) Name() string { return APIGemini }

// Generate sends the prompt as a single text part and joins the text parts
// of the first candidate.
func (g *Gemini) Generate(ctx context.Context, model, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", models.NewConfigurationError("GEMINI_API_KEY is not set")
	}

	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return "", &models.SummarizationError{Backend: APIGemini, Err: fmt.Errorf("create client: %w", err)}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", &models.SummarizationError{Backend: APIGemini, Err: fmt.Errorf("generate content: %w", err)}
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", &models.SummarizationError{Backend: APIGemini, Err: errors.New("empty response")}
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return "", &models.SummarizationError{Backend: APIGemini, Err: errors.New("empty response")}
	}
	return summary, nil
}
