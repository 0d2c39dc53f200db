package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier posts completion callbacks over HTTP. Fire and forget:
// a failed delivery is logged and dropped, never retried.
type WebhookNotifier struct {
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotifier(timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, url string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("failed to encode webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build webhook request", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
		)
		return
	}

	n.logger.Info("webhook delivered", zap.String("url", url))
}
