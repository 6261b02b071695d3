package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a card and reports whether it was delivered.
type Sender interface {
	Send(ctx context.Context, c Card) bool
}

// Webhook posts cards to a Teams incoming webhook.
type Webhook struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhook returns a sender for url. An empty url makes Send log the card
// instead of posting it. timeout bounds each outbound call.
func NewWebhook(url string, timeout time.Duration, log *zap.Logger) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, log: log}
}

// Send posts the card. It never returns an error: a missing webhook, a
// transport failure, a timeout and a non-2xx reply all log and return false.
func (w *Webhook) Send(ctx context.Context, c Card) bool {
	if w.url == "" {
		w.log.Info("notification not sent, webhook not configured",
			zap.String("title", c.Title),
			zap.String("message", c.Text),
			zap.Any("facts", c.Facts))
		return false
	}

	if err := w.post(ctx, c); err != nil {
		w.log.Warn("notification failed", zap.String("title", c.Title), zap.Error(err))
		return false
	}
	w.log.Info("notification sent", zap.String("title", c.Title))
	return true
}

func (w *Webhook) post(ctx context.Context, c Card) error {
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", res.StatusCode)
	}
	return nil
}
