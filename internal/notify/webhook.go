package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Webhook posts texts as JSON to an HTTP endpoint.
type Webhook struct {
	URL string

	client *resty.Client
	log    *zap.Logger
}

type webhookPayload struct {
	Text string `json:"text"`
}

// NewWebhook creates a webhook recipient.
func NewWebhook(url string, headers map[string]string, log *zap.Logger) *Webhook {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers)

	return &Webhook{URL: url, client: client, log: log}
}

// Notify posts {"text": text}. Any non-2xx status is an error.
func (w *Webhook) Notify(ctx context.Context, text string) error {
	w.log.Debug("posting webhook", zap.String("url", w.URL))

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{Text: text}).
		Post(w.URL)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.URL, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s: status %d", w.URL, resp.StatusCode())
	}
	return nil
}

func (w *Webhook) String() string {
	return "webhook:" + w.URL
}
