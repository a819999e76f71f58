package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// webhookTimeout bounds one chat webhook delivery.
const webhookTimeout = 10 * time.Second

// WebhookNotifier posts digests to a chat webhook as {"text": digest}.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Name implements Notifier.
func (w *WebhookNotifier) Name() string { return "webhook" }

// Notify delivers one digest to the webhook.
func (w *WebhookNotifier) Notify(ctx context.Context, digest string) error {
	payload, err := json.Marshal(map[string]string{"text": digest})
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, "failed to post webhook")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.New(fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}

	return nil
}
