package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Poster posts a message to a Mattermost incoming webhook.
type Poster interface {
	Post(ctx context.Context, webhook, text string) error
}

// WebhookPoster is the real Poster using plain HTTP.
type WebhookPoster struct {
	client *http.Client
}

// NewWebhookPoster creates a poster with a bounded request timeout.
func NewWebhookPoster(timeout time.Duration) *WebhookPoster {
	return &WebhookPoster{client: &http.Client{Timeout: timeout}}
}

// Post sends {"text": text} to the webhook.
func (p *WebhookPoster) Post(ctx context.Context, webhook, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}
	return nil
}
