package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// SignatureHeader carries the payload MAC on factory notifications.
const SignatureHeader = "X-Factory-Signature"

// Payload is the notification body posted to a factory endpoint after a
// production bundle is assembled.
type Payload struct {
	OrderID      string                           `json:"orderId"`
	BundleURL    string                           `json:"bundleUrl"`
	Instructions domain.ManufacturingInstructions `json:"instructions"`
	Metadata     map[string]string                `json:"metadata,omitempty"`
	Timestamp    time.Time                        `json:"timestamp"`
}

// Client delivers signed factory webhooks. Signatures are HMAC-SHA256 over
// the exact request body; the legacy reversible encoding the signature
// replaced offered no authenticity at all.
type Client struct {
	secret     []byte
	httpClient *http.Client
	logger     infra.Logger
}

// NewClient builds a webhook client. An empty secret still signs (with an
// empty key) so receivers can be developed against a fixed scheme.
func NewClient(secret string, httpClient *http.Client, logger infra.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{secret: []byte(secret), httpClient: httpClient, logger: logger}
}

// Sign computes the hex HMAC-SHA256 of body.
func (c *Client) Sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body. Receivers use this in
// tests and reference integrations.
func (c *Client) Verify(body []byte, signature string) bool {
	expected := c.Sign(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Deliver posts the signed payload to url. Errors are returned for logging
// but callers treat delivery as best-effort: a webhook failure never fails
// the owning job.
func (c *Client) Deliver(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, c.Sign(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.logger.Info().
		Str("order_id", payload.OrderID).
		Str("url", url).
		Int("status", resp.StatusCode).
		Msg("webhook: factory notified")
	return nil
}
