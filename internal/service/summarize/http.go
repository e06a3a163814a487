package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meeting-protocol-service/internal/models"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends payload and decodes a 200 response into out. Transport,
// status and decode failures become SummarizationError.
func postJSON(ctx context.Context, client *http.Client, backend, url, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &models.SummarizationError{Backend: backend, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &models.SummarizationError{Backend: backend, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &models.SummarizationError{Backend: backend, Err: fmt.Errorf("call API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &models.SummarizationError{
			Backend: backend,
			Err:     fmt.Errorf("API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.SummarizationError{Backend: backend, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
