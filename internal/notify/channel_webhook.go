package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// WebhookChannel POSTs each record as JSON to a configured endpoint. A
// non-2xx response is a delivery failure. When a secret is configured the
// body is signed with the same HMAC scheme the ingest endpoint verifies.
type WebhookChannel struct {
	name   string
	url    string
	secret string
	client *http.Client
}

// NewWebhookChannel builds a webhook channel from its configuration.
func NewWebhookChannel(cfg config.ChannelConfig) (*WebhookChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook channel %q has no url", cfg.Name)
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookChannel{
		name:   cfg.Name,
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *WebhookChannel) Name() string {
	return c.name
}

// Deliver POSTs the record. The context bounds the attempt in addition to
// the client timeout.
func (c *WebhookChannel) Deliver(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding notification %s: %w", rec.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.secret != "" {
		req.Header.Set(internalcommon.SignatureHeader, internalcommon.SignPayload(c.secret, body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", c.name, err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook %s: unexpected status %d", c.name, resp.StatusCode)
	}

	return nil
}

// Close releases idle connections.
func (c *WebhookChannel) Close() error {
	c.client.CloseIdleConnections()

	return nil
}
