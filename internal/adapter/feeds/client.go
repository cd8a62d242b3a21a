// Package feeds holds one adapter per upstream hazard source. Every adapter
// fetches its feed (or serves the embedded fixture in mock mode), parses the
// upstream wire format leniently, and normalizes records into the common
// domain schema. Records that cannot be salvaged are dropped and counted,
// never fatal to the cycle.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

// Drop reasons reported on the records_dropped counter.
const (
	dropMalformed     = "malformed"
	dropNoCoordinates = "no_coordinates"
)

// Client is the HTTP plumbing shared by all feed adapters.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates the shared fetch client. Per-request deadlines come from
// each feed's configured timeout, not from the underlying http.Client.
func NewClient(logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    metrics,
	}
}

// fetchBody returns the feed payload: the live endpoints when one answers,
// the embedded fixture when mock mode is on or every endpoint fails. A dead
// upstream degrades to stale-but-plausible data instead of starving the
// cycle; the failure is still logged and counted.
func (c *Client) fetchBody(ctx context.Context, source domain.Source, feed config.Feed,
	query url.Values, fallback []byte, mock bool) []byte {
	if mock {
		return fallback
	}
	body, err := c.get(ctx, source, feed, query)
	if err != nil {
		c.logger.Warn("all endpoints failed, serving fixture data", "source", source, "error", err)
		return fallback
	}
	return body
}

// get fetches the feed's primary endpoint and falls back to the secondary
// endpoint when the primary fails. Both attempts honor the feed timeout.
func (c *Client) get(ctx context.Context, source domain.Source, feed config.Feed, query url.Values) ([]byte, error) {
	body, primaryErr := c.getOnce(ctx, feed, feed.URL, query)
	if primaryErr == nil {
		return body, nil
	}
	if feed.SecondaryURL == "" {
		c.metrics.FetchFailures.WithLabelValues(string(source)).Inc()
		return nil, primaryErr
	}

	c.logger.Warn("primary endpoint failed, trying fallback",
		"source", source, "error", primaryErr)
	body, fallbackErr := c.getOnce(ctx, feed, feed.SecondaryURL, query)
	if fallbackErr != nil {
		c.metrics.FetchFailures.WithLabelValues(string(source)).Inc()
		return nil, errors.Join(primaryErr, fallbackErr)
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, feed config.Feed, endpoint string, query url.Values) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, feed.Timeout)
	defer cancel()

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if len(query) > 0 {
		merged := u.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		u.RawQuery = merged.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if feed.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+feed.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("fetch %s: status %d", u.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) drop(source domain.Source, reason string) {
	c.metrics.RecordsDropped.WithLabelValues(string(source), reason).Inc()
}
