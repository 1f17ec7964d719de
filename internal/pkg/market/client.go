// Package market looks up event metadata from the Kalshi trade API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/internal/pkg/cache"
)

var ErrEventNotFound = errors.New("event not found")

// Event is the subset of Kalshi event metadata the alert service needs.
type Event struct {
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	SubTitle     string `json:"sub_title"`
	Category     string `json:"category"`
}

// Cache is the read-through cache used for event lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
}

type eventResponse struct {
	Event Event `json:"event"`
}

type Client struct {
	baseURL  string
	client   *http.Client
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClient creates a metadata client. cache may be nil.
func NewClient(baseURL string, timeout time.Duration, c Cache, cacheTTL time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// LookupEvent returns metadata for eventTicker, serving from cache when
// possible.
func (c *Client) LookupEvent(ctx context.Context, eventTicker string) (Event, error) {
	key := "kalshi:event:" + eventTicker
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var ev Event
			if err := json.Unmarshal([]byte(raw), &ev); err == nil {
				return ev, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("event metadata cache read failed", zap.String("event_ticker", eventTicker), zap.Error(err))
		}
	}

	ev, err := c.fetchEvent(ctx, eventTicker)
	if err != nil {
		return Event{}, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(ev); err == nil {
			if err := c.cache.Set(ctx, key, string(raw), c.cacheTTL); err != nil {
				c.logger.Warn("event metadata cache write failed", zap.String("event_ticker", eventTicker), zap.Error(err))
			}
		}
	}
	return ev, nil
}

func (c *Client) fetchEvent(ctx context.Context, eventTicker string) (Event, error) {
	endpoint := fmt.Sprintf("%s/events/%s", c.baseURL, url.PathEscape(eventTicker))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Event{}, err
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Error("kalshi request failed", zap.String("event_ticker", eventTicker), zap.String("url", endpoint), zap.Error(err))
		return Event{}, err
	}
	defer response.Body.Close()

	c.logger.Debug(
		"kalshi request complete",
		zap.String("event_ticker", eventTicker),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode == http.StatusNotFound {
		return Event{}, ErrEventNotFound
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Event{}, fmt.Errorf("kalshi error: status %d", response.StatusCode)
	}

	var payload eventResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Event{}, err
	}
	if payload.Event.EventTicker == "" {
		payload.Event.EventTicker = eventTicker
	}
	return payload.Event, nil
}
