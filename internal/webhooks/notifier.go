package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/metrics"
)

// ErrDeliveryFailed is returned when every attempt failed.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Notifier POSTs JSON payloads to callback URLs, retrying non-2xx
// responses with exponential backoff.
type Notifier struct {
	HTTP        *http.Client
	Secret      string
	MaxAttempts int
	// Backoff returns the wait before attempt n+1; nextBackoff when nil.
	Backoff func(attempts int) time.Duration
	Log     *zap.Logger
}

func NewNotifier(secret string, maxAttempts int, log *zap.Logger) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Secret:      secret,
		MaxAttempts: maxAttempts,
		Log:         log,
	}
}

// Deliver marshals payload (unless it is already []byte) and posts it,
// blocking until it succeeds, attempts run out or ctx ends.
func (n *Notifier) Deliver(ctx context.Context, url, eventType string, payload any) error {
	body, ok := payload.([]byte)
	if !ok {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	backoff := n.Backoff
	if backoff == nil {
		backoff = nextBackoff
	}
	max := n.MaxAttempts
	if max <= 0 {
		max = 1
	}
	log := n.logger()

	var lastErr error
	for attempt := 0; attempt < max; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		start := time.Now()
		code, err := n.post(ctx, url, eventType, body)
		latency := float64(time.Since(start).Milliseconds())
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues(eventType, "success").Inc()
			metrics.WebhookLatency.WithLabelValues(eventType, "success").Observe(latency)
			return nil
		}
		lastErr = err
		metrics.WebhookLatency.WithLabelValues(eventType, "error").Observe(latency)
		log.Warn("webhook attempt failed",
			zap.String("url", url),
			zap.String("event_type", eventType),
			zap.Int("attempt", attempt+1),
			zap.Int("status", code),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	metrics.WebhookDeliveries.WithLabelValues(eventType, "failed").Inc()
	return fmt.Errorf("%w after %d attempt(s): %v", ErrDeliveryFailed, max, lastErr)
}

func (n *Notifier) post(ctx context.Context, url, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if n.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(n.Secret, body))
	}
	client := n.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (n *Notifier) logger() *zap.Logger {
	if n.Log == nil {
		return zap.NewNop()
	}
	return n.Log
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
