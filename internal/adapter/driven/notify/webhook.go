// Package notify contains the operator notification channels behind the
// driven.Notifier port.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// WebhookFormat selects the payload shape posted by a Webhook.
type WebhookFormat string

const (
	// WebhookFormatText posts {"text": message}.
	WebhookFormatText WebhookFormat = "text"
	// WebhookFormatHTML additionally renders the message to sanitized HTML.
	WebhookFormatHTML WebhookFormat = "html"
)

// ParseWebhookFormat converts a string to a WebhookFormat.
func ParseWebhookFormat(s string) (WebhookFormat, error) {
	switch f := WebhookFormat(s); f {
	case WebhookFormatText, WebhookFormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown webhook format %q: expected text or html", s)
	}
}

type webhookPayload struct {
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Webhook)(nil)

// Webhook posts alert messages as JSON to a chat or incident webhook.
type Webhook struct {
	url    string
	format WebhookFormat
	client *http.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		if client != nil {
			w.client = client
		}
	}
}

// WithFormat selects the payload format. The default is text.
func WithFormat(format WebhookFormat) WebhookOption {
	return func(w *Webhook) {
		if format != "" {
			w.format = format
		}
	}
}

// NewWebhook constructs a Webhook posting to url.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("webhook: empty url")
	}
	w := &Webhook{
		url:    url,
		format: WebhookFormatText,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Send posts message. Any response outside 2xx is a delivery failure.
func (w *Webhook) Send(ctx context.Context, message string) error {
	payload := webhookPayload{Text: message}
	if w.format == WebhookFormatHTML {
		payload.HTML = RenderMarkdown(message)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: webhook: build request: %w", driven.ErrNotifierFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: %w", driven.ErrNotifierFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook: non-2xx response %d", driven.ErrNotifierFailure, resp.StatusCode)
	}
	return nil
}
