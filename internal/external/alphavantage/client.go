package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-signal/internal/quota"
	"github.com/wonny/aegis-signal/internal/respcache"
	"github.com/wonny/aegis-signal/pkg/config"
	"github.com/wonny/aegis-signal/pkg/httputil"
	"github.com/wonny/aegis-signal/pkg/logger"
)

var (
	// ErrRateLimited is returned when the API answers with a throttling note
	ErrRateLimited = errors.New("upstream rate limit notice")
	// ErrInvalidRequest is returned for an API-level error message
	ErrInvalidRequest = errors.New("upstream rejected request")
	// ErrNoData is returned when an expected payload section is missing
	ErrNoData = errors.New("upstream returned no data")
)

// Client handles communication with the shared market data API.
// Every call goes cache -> in-flight attach -> quota gate -> per-second limiter -> HTTP.
// ⭐ SSOT: 업스트림 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cache      *respcache.Cache
	gate       *quota.Gate
	limiter    *rate.Limiter
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates a new upstream client
func NewClient(cfg config.UpstreamConfig, httpClient *httputil.Client, cache *respcache.Cache, gate *quota.Gate, log *logger.Logger) *Client {
	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		gate:       gate,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     log.WithComponent("alphavantage"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Query returns the raw JSON body for params, served from cache when fresh.
// quota.ErrExhausted means the daily budget is spent and callers should fall back.
func (c *Client) Query(ctx context.Context, category respcache.Category, params map[string]string) ([]byte, error) {
	return c.cache.Do(ctx, category, params, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, params)
	})
}

// fetch performs one admitted upstream call
func (c *Client) fetch(ctx context.Context, params map[string]string) ([]byte, error) {
	ok, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("quota wait: %w", err)
	}
	if !ok {
		c.logger.WithField("function", params["function"]).Warn("Daily quota exhausted")
		return nil, quota.ErrExhausted
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := c.httpClient.GetBody(ctx, c.buildURL(params))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", params["function"], err)
	}

	if err := checkPayload(body); err != nil {
		return nil, fmt.Errorf("%s: %w", params["function"], err)
	}

	c.logger.WithFields(map[string]interface{}{
		"function": params["function"],
		"bytes":    len(body),
	}).Debug("Fetched upstream payload")
	return body, nil
}

func (c *Client) buildURL(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("apikey", c.apiKey)
	return c.baseURL + "?" + values.Encode()
}

// checkPayload detects API-level errors delivered with HTTP 200
func checkPayload(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var probe struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch {
	case probe.ErrorMessage != "":
		return fmt.Errorf("%w: %s", ErrInvalidRequest, probe.ErrorMessage)
	case probe.Note != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, probe.Note)
	case probe.Information != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, probe.Information)
	}
	return nil
}

// QuotaSnapshot exposes the gate counters
func (c *Client) QuotaSnapshot() quota.Snapshot {
	return c.gate.Snapshot()
}

// CacheStats exposes the response cache counters
func (c *Client) CacheStats() respcache.Stats {
	return c.cache.Stats()
}
