package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/webforge/backend/internal/models"
)

const webhookTimeout = 10 * time.Second

// WebhookSink posts notification batches as JSON to a delivery service.
type WebhookSink struct {
	URL        string
	HTTPClient *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, HTTPClient: &http.Client{Timeout: webhookTimeout}}
}

func (s *WebhookSink) Send(ctx context.Context, ns []Notification) error {
	body, err := json.Marshal(map[string]any{"notifications": ns})
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: notification webhook: %v", models.ErrDownstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: notification webhook returned %d", models.ErrDownstream, resp.StatusCode)
	}
	return nil
}

// LogSink only logs. Used when no delivery service is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Send(ctx context.Context, ns []Notification) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	for _, n := range ns {
		log.InfoContext(ctx, "notification", "kind", n.Kind, "recipients", len(n.Recipients), "items", len(n.Items), "subject", n.Subject)
	}
	return nil
}
