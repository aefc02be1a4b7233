package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"

	"golang.org/x/time/rate"
)

const restMaxAttempts = 3

// restClient performs rate-limited public GET requests against one venue.
type restClient struct {
	venue       string
	baseURL     string
	client      *http.Client
	rateLimiter *rate.Limiter
	backoff     func(retry int) time.Duration
}

func newRESTClient(venue, baseURL string, perSecond int) *restClient {
	return &restClient{
		venue:       venue,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		backoff:     infra.CalculateBackoff,
	}
}

// getJSON decodes the JSON body of GET path?query into out, retrying transient failures.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < restMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		// Wait for rate limit
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.do(ctx, endpoint, out)
		if lastErr == nil || !domain.IsRetriable(lastErr) {
			return lastErr
		}
		slog.Warn("REST request failed, retrying",
			slog.String("venue", c.venue),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr),
		)
	}
	return lastErr
}

func (c *restClient) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.NewFatalNetworkError("request", err)
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewNetworkError("get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return domain.NewNetworkError("get", statusErr)
		}
		return domain.NewFatalNetworkError("get", statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewFatalNetworkError("decode", err)
	}
	return nil
}
