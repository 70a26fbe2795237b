package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ClientConfig configures the HTTP closing-price client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultClientConfig returns sensible retry and timeout defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Timeout:        10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Client fetches daily closing prices over HTTP, guarded by a circuit
// breaker so a flapping upstream does not stall every valuation request.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
	config     ClientConfig
}

// NewClient creates a price client for the configured endpoint.
func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Infof("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
}

// ClosingPrice fetches the closing price, retrying transient failures with
// bounded exponential backoff. A zero date requests the latest close.
func (c *Client) ClosingPrice(ctx context.Context, symbol string, date time.Time) (float64, error) {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("price lookup canceled: %w", ctx.Err())
		}

		price, err := c.fetch(ctx, symbol, date)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		c.logger.WithError(err).Warnf("price lookup for %s failed (attempt %d/%d), retrying in %v",
			symbol, attempt+1, c.config.MaxRetries+1, backoff)
		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
		case <-ctx.Done():
			return 0, fmt.Errorf("price lookup canceled during backoff: %w", ctx.Err())
		}
	}
	return 0, lastErr
}

func (c *Client) fetch(ctx context.Context, symbol string, date time.Time) (float64, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetch(ctx, symbol, date)
	})
	if err != nil {
		return 0, err
	}
	price, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("price lookup: unexpected breaker result type %T", res)
	}
	return price, nil
}

func (c *Client) doFetch(ctx context.Context, symbol string, date time.Time) (float64, error) {
	endpoint, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/v1/quotes/daily")
	if err != nil {
		return 0, fmt.Errorf("building quote URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("symbol", symbol)
	if !date.IsZero() {
		q.Set("date", date.Format("2006-01-02"))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("building quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("quote for %s: %w", symbol, ErrPriceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("quote for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding quote for %s: %w", symbol, err)
	}
	if body.Close <= 0 {
		return 0, fmt.Errorf("quote for %s: %w", symbol, ErrPriceUnavailable)
	}
	return body.Close, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"unexpected status 5",
		"unexpected status 429",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var _ Provider = (*Client)(nil)
