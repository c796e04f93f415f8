// Package notify implements the notify.webhook node family's external
// collaborator: a best-effort, non-blocking post of a job-completion
// summary to a configured webhook URL (spec §1 non-goals list external
// notification as a stub-level concern; it is specified here as an
// interface plus a real HTTP implementation so the workflow engine has
// something concrete to call).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scanflow/platform/internal/platform/logger"
)

// Notifier posts a job-completion summary somewhere external.
type Notifier interface {
	Notify(ctx context.Context, payload map[string]any) error
}

// WebhookNotifier posts JSON to a fixed URL, matching the Slack
// incoming-webhook convention (a flat JSON body, 2xx on success).
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

func NewWebhookNotifier(url string, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With("component", "Notifier"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, payload map[string]any) error {
	if n.url == "" {
		n.log.Debug("notify skipped: no webhook url configured")
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("notify webhook request failed", "error", err)
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("notify webhook returned non-2xx", "status", resp.StatusCode)
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopNotifier discards every notification; used when no webhook is
// configured in an environment but a Notifier is still required.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, map[string]any) error { return nil }
