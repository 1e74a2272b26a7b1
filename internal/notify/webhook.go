package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/version"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultInitialDelay = time.Second
	maxErrorBody        = 512
)

// Notifier delivers alerts
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// WebhookNotifier posts alerts to a webhook with retries
type WebhookNotifier struct {
	config       config.WebhookConfig
	client       *http.Client
	logger       logr.Logger
	initialDelay time.Duration
}

// NewWebhookNotifier creates a new webhook notifier with the given configuration
func NewWebhookNotifier(cfg config.WebhookConfig, logger logr.Logger) *WebhookNotifier {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &WebhookNotifier{
		config:       cfg,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.WithName("webhook"),
		initialDelay: defaultInitialDelay,
	}
}

// Notify builds the payload for the configured webhook type and sends it.
// An alert without results is not sent.
func (w *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	if len(alert.Results) == 0 {
		return nil
	}

	payload, err := w.buildPayload(alert)
	if err != nil {
		return err
	}
	return w.Send(ctx, payload)
}

func (w *WebhookNotifier) buildPayload(alert Alert) (any, error) {
	switch w.config.Type {
	case config.WebhookSlack, "":
		return BuildSlack(alert), nil
	case config.WebhookTeams:
		return BuildTeams(alert), nil
	case config.WebhookGeneric:
		return BuildGeneric(alert), nil
	default:
		return nil, fmt.Errorf("unsupported webhook type: %s", w.config.Type)
	}
}

// Send posts payload as JSON.
// Returns error if all retry attempts fail
func (w *WebhookNotifier) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	maxRetries := max(w.config.MaxRetries, 0)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: initialDelay * 2^(attempt-1)
			delay := w.initialDelay * time.Duration(1<<(attempt-1))
			w.logger.Info("retrying webhook after delay",
				"attempt", attempt,
				"delay", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		err := w.sendOnce(ctx, body)
		if err == nil {
			if attempt > 0 {
				w.logger.Info("webhook succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		w.logger.Error(err, "webhook attempt failed",
			"attempt", attempt,
			"maxRetries", maxRetries)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries+1, lastErr)
}

// sendOnce performs a single webhook send attempt
func (w *WebhookNotifier) sendOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	// Custom headers may override the defaults
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-success status: %d, body: %s",
			resp.StatusCode, string(respBody))
	}

	w.logger.V(1).Info("webhook sent", "status", resp.StatusCode)
	return nil
}
