package jobs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/storefront-orders/api/internal/domain"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Signature-Timestamp"
	nonceHeader     = "X-Signature-Nonce"
)

// WebhookNotificationPublisher POSTs notifications to an HTTP endpoint, signing each request
// with HMAC-SHA256 over method, path, timestamp, nonce and body hash.
type WebhookNotificationPublisher struct {
	endpoint *url.URL
	secret   []byte
	client   *http.Client
	now      func() time.Time
	nonce    func() (string, error)
}

// NewWebhookNotificationPublisher constructs a signed webhook publisher.
func NewWebhookNotificationPublisher(endpoint, secret string, timeout time.Duration) (*WebhookNotificationPublisher, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("webhook notification publisher: invalid url %q", endpoint)
	}
	if secret == "" {
		return nil, errors.New("webhook notification publisher: secret is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotificationPublisher{
		endpoint: parsed,
		secret:   []byte(secret),
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
		nonce:    randomNonce,
	}, nil
}

// Name identifies the publisher in logs and metrics.
func (p *WebhookNotificationPublisher) Name() string { return "webhook" }

// Publish delivers the notification. Any non-2xx response is an error so the relay retries.
func (p *WebhookNotificationPublisher) Publish(ctx context.Context, notification domain.Notification) (string, error) {
	body, err := json.Marshal(newNotificationMessage(notification))
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}
	nonce, err := p.nonce()
	if err != nil {
		return "", err
	}
	timestamp := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(timestampHeader, timestamp)
	req.Header.Set(nonceHeader, nonce)
	req.Header.Set(signatureHeader, SignWebhook(p.secret, http.MethodPost, p.endpoint.EscapedPath(), timestamp, nonce, body))
	req.Header.Set("X-Notification-Id", notification.ID)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("deliver webhook: unexpected status %d", resp.StatusCode)
	}
	return notification.ID, nil
}

// SignWebhook computes the hex signature receivers use to authenticate a delivery.
func SignWebhook(secret []byte, method, path, timestamp, nonce string, body []byte) string {
	hash := sha256.Sum256(body)
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n")
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomNonce() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhook nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
