// Package webhook posts deal payloads to the automation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/execution-hub/dealflow/internal/domain/notification"
)

const (
	userAgent       = "dealflow-webhook/1.0"
	headerDelivery  = "X-Dealflow-Delivery"
	headerEvent     = "X-Dealflow-Event"
	headerSignature = "X-Dealflow-Signature"
	maxErrorBody    = 512
)

var (
	ErrNotConfigured = errors.New("webhook URL not configured")
	// ErrRejected marks a 4xx response; resending the same payload will not help.
	ErrRejected = errors.New("webhook rejected payload")
)

// Client delivers payloads with a keyed BLAKE2b signature of the body.
type Client struct {
	url        string
	signingKey []byte
	http       *http.Client
}

// NewClient creates a client. A signing key longer than 64 bytes is rejected.
func NewClient(url string, signingKey []byte, timeout time.Duration) (*Client, error) {
	if len(signingKey) > blake2b.Size {
		return nil, fmt.Errorf("signing key too long: %d bytes", len(signingKey))
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, signingKey: signingKey, http: &http.Client{Timeout: timeout}}, nil
}

// Sign returns the hex signature for body.
func Sign(key, body []byte) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Client) Post(ctx context.Context, payload *notification.WebhookPayload) error {
	if c.url == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerDelivery, uuid.NewString())
	req.Header.Set(headerEvent, string(payload.Event))
	if len(c.signingKey) > 0 {
		sig, err := Sign(c.signingKey, body)
		if err != nil {
			return err
		}
		req.Header.Set(headerSignature, sig)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, snippet)
	}
	return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
}
