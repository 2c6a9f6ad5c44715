package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Forwarder hands a doorkeeper event on to another system.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// KelderForwarder posts events as JSON to kelderapi, authenticated by a Token header.
type KelderForwarder struct {
	url    string
	token  string
	client *http.Client
}

// NewKelderForwarder creates a forwarder for the kelderapi doorkeeper endpoint.
func NewKelderForwarder(url, token string, timeout time.Duration) *KelderForwarder {
	return &KelderForwarder{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

// Forward posts ev. Any non-2xx reply is an error.
func (f *KelderForwarder) Forward(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}
	return nil
}
