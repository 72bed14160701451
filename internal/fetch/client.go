package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

// Options configures a Client.
type Options struct {
	// Courtesy is the minimum spacing between logical requests. Zero
	// disables the throttle.
	Courtesy time.Duration
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// MaxRetries bounds retries of transient failures. -1 retries forever.
	MaxRetries int
	// Timeout applies to each attempt.
	Timeout time.Duration
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

// Client performs provider GETs until they succeed. A 404 fails fast with
// domain.ErrNotFound; every other failure is retried after a fixed delay.
type Client struct {
	platform   domain.Platform
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retrypolicy.RetryPolicy[[]byte]
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a client for one platform.
func New(platform domain.Platform, opts Options, logger *slog.Logger, m *metrics.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.Courtesy > 0 {
		limit = rate.Every(opts.Courtesy)
	}

	c := &Client{
		platform:   platform,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		metrics:    m,
	}

	c.policy = retrypolicy.NewBuilder[[]byte]().
		WithDelay(opts.RetryDelay).
		WithMaxRetries(opts.MaxRetries).
		AbortOnErrors(domain.ErrNotFound).
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			c.logger.Warn("retrying provider request",
				"platform", c.platform,
				"attempt", e.Attempts(),
				"error", e.LastError(),
			)
			if c.metrics != nil {
				c.metrics.FetchRetries.WithLabelValues(string(c.platform)).Inc()
			}
		}).
		Build()

	return c
}

// Get waits for the courtesy limiter and then fetches url until it succeeds,
// is not found, the retry bound is reached or ctx is cancelled.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("courtesy wait: %w", err)
	}

	body, err := failsafe.With(c.policy).WithContext(ctx).Get(func() ([]byte, error) {
		return c.do(ctx, url, headers)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return body, nil
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
