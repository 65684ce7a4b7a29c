package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const senderTimeout = 10 * time.Second

// WebhookSender posts alerts as a JSON document to an operator-supplied
// endpoint. Anything that accepts a generic JSON body works: Slack-style
// incoming webhooks, internal alert routers, pager bridges.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a sender posting to url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: senderTimeout},
	}
}

type webhookPayload struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Message string `json:"message"`
	SentAt  string `json:"sent_at"`
}

// Send posts the alert. Any 2xx response counts as delivered.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(webhookPayload{
		Source:  "bookd",
		Title:   title,
		Message: message,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string { return "webhook" }
