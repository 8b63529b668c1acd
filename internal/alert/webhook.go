package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// WebhookNotifier POSTs a Payload to a URL. Sends are rate limited so a burst
// of failing runs cannot flood the receiver.
type WebhookNotifier struct {
	url     string
	token   config.Secret
	status  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewWebhookNotifier returns a notifier for status configured by cfg.
func NewWebhookNotifier(cfg config.WebhookConfig, status string, logger *logging.Logger) *WebhookNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		token:   cfg.Token,
		status:  status,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("alert.webhook"),
	}
}

// Notify sends the alert. Any non-2xx response counts as a failed delivery.
func (n *WebhookNotifier) Notify(ctx context.Context, identifier string) bool {
	if err := n.send(ctx, identifier); err != nil {
		n.logger.Warn(ctx, "webhook alert failed",
			zap.String("identifier", identifier),
			zap.String("status", n.status),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (n *WebhookNotifier) send(ctx context.Context, identifier string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(newPayload(identifier, n.status))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dbtflow")
	if n.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+n.token.Value())
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
