// Package superfeedr is a PubSubHubbub client for the Superfeedr hub.
package superfeedr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHubURL  = "https://push.superfeedr.com"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// SubscriptionError is returned when the hub answers with a non-2xx status.
type SubscriptionError struct {
	Mode       string
	StatusCode int
	Body       string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("superfeedr %s failed: status %d: %s", e.Mode, e.StatusCode, e.Body)
}

// TimeoutError is returned when the hub does not answer within the timeout.
type TimeoutError struct {
	Mode    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("superfeedr %s timed out after %s", e.Mode, e.Timeout)
}

// IsNotConfigured reports whether err means the hub rejected our credentials.
// Callers treat this as "hub not configured" rather than a hard failure.
func IsNotConfigured(err error) bool {
	var subErr *SubscriptionError
	return errors.As(err, &subErr) && subErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the hub.
type Client struct {
	HubURL     string
	Login      string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client

	logger *zap.Logger
}

// NewClient creates a hub client.
func NewClient(hubURL, login, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HubURL:     hubURL,
		Login:      login,
		Token:      token,
		Timeout:    timeout,
		HTTPClient: &http.Client{},
		logger:     logger,
	}
}

// Subscribe registers callback for topic with a synchronous verification.
func (c *Client) Subscribe(ctx context.Context, topic, callback, secret string) error {
	form := url.Values{
		"hub.mode":     {"subscribe"},
		"hub.topic":    {topic},
		"hub.callback": {callback},
		"hub.secret":   {secret},
		"hub.verify":   {"sync"},
		"format":       {"json"},
	}
	return c.post(ctx, "subscribe", topic, form)
}

// Unsubscribe removes callback from topic.
func (c *Client) Unsubscribe(ctx context.Context, topic, callback string) error {
	form := url.Values{
		"hub.mode":     {"unsubscribe"},
		"hub.topic":    {topic},
		"hub.callback": {callback},
		"hub.verify":   {"sync"},
	}
	return c.post(ctx, "unsubscribe", topic, form)
}

func (c *Client) post(ctx context.Context, mode, topic string, form url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.HubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.Login, c.Token)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Error("superfeedr request timed out", zap.String("mode", mode), zap.String("topic", topic))
			return &TimeoutError{Mode: mode, Timeout: c.Timeout}
		}
		c.logger.Error("superfeedr request failed", zap.String("mode", mode), zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("superfeedr %s: %w", mode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("superfeedr rejected request",
			zap.String("mode", mode),
			zap.String("topic", topic),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return &SubscriptionError{Mode: mode, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("superfeedr request complete",
		zap.String("mode", mode),
		zap.String("topic", topic),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
