// Package upstream fetches hour-bucketed constellation snapshots from the
// feed, degrading gracefully: older buckets are tried when fresher ones
// fail, and a single-slot last-known-good cache answers when the whole feed
// is down.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/driftline/constellation-tracker/internal/config"
	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

const (
	oldestBucket = 23

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Client retrieves the freshest obtainable snapshot from the feed.
type Client struct {
	urlTemplate string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	cache       *lastKnownGood
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a feed client. The breaker is optional per config and
// wraps one whole bucket sweep per call: individual bucket misses inside a
// sweep never feed the trip counter, only sweeps where every bucket failed.
// An open breaker skips the network entirely and falls straight through to
// the last-known-good cache.
func NewClient(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	c := &Client{
		urlTemplate: cfg.UpstreamURLTemplate,
		httpClient: &http.Client{
			Timeout: cfg.UpstreamTimeout,
		},
		cache:   &lastKnownGood{},
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "upstream-feed",
		})
	}
	return c
}

// FetchFreshest tries buckets in ascending age order starting at
// requestedHoursAgo (clamped to [0, 23]) and returns the first success. Each
// bucket is attempted at most once per call; retry pacing belongs to the
// polling interval. When the sweep fails outright, whether every bucket
// failed or the breaker was open, the last-known-good cache is served if
// populated; otherwise the call fails with domain.ErrNoDataAvailable
// wrapping the last error observed.
func (c *Client) FetchFreshest(ctx context.Context, requestedHoursAgo int) (domain.RawSnapshot, error) {
	requested := clampHours(requestedHoursAgo)

	snap, err := c.sweep(ctx, requested)
	if err == nil {
		return snap, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.RawSnapshot{}, ctxErr
	}

	if cached, ok := c.cache.get(); ok {
		age := int64(c.clock.Now().Sub(cached.storedAt) / time.Second)
		c.metrics.SnapshotSource.WithLabelValues(string(domain.SourceCache)).Inc()
		c.logger.Info("all buckets failed, serving last-known-good cache",
			"cache_age_seconds", age, "hours_ago", cached.hoursAgo, "last_error", err)
		return domain.RawSnapshot{
			Data:            cached.data,
			HoursAgo:        cached.hoursAgo,
			Source:          domain.SourceCache,
			CacheAgeSeconds: age,
		}, nil
	}

	return domain.RawSnapshot{}, fmt.Errorf("%w: all buckets failed: %w", domain.ErrNoDataAvailable, err)
}

// sweep runs one full bucket sweep, routed through the breaker when enabled.
// The breaker sees the sweep as a single operation so in-sweep bucket misses
// with a success further down still count as success.
func (c *Client) sweep(ctx context.Context, requested int) (domain.RawSnapshot, error) {
	if c.breaker == nil {
		return c.sweepBuckets(ctx, requested)
	}
	result, err := c.breaker.Execute(func() (any, error) {
		return c.sweepBuckets(ctx, requested)
	})
	if err != nil {
		return domain.RawSnapshot{}, err
	}
	return result.(domain.RawSnapshot), nil
}

// sweepBuckets tries each bucket from requested to the oldest exactly once
// and returns the first success.
func (c *Client) sweepBuckets(ctx context.Context, requested int) (domain.RawSnapshot, error) {
	var lastErr error
	for hours := requested; hours <= oldestBucket; hours++ {
		if err := ctx.Err(); err != nil {
			return domain.RawSnapshot{}, err
		}

		data, err := c.doFetch(ctx, hours)
		if err != nil {
			lastErr = err
			c.metrics.BucketAttempts.WithLabelValues(outcomeFailure).Inc()
			c.logger.Debug("bucket attempt failed", "hours_ago", hours, "error", err)
			continue
		}

		c.metrics.BucketAttempts.WithLabelValues(outcomeSuccess).Inc()
		c.metrics.SnapshotSource.WithLabelValues(string(domain.SourceUpstream)).Inc()
		c.cache.store(c.clock.Now(), hours, data)
		return domain.RawSnapshot{
			Data:     data,
			HoursAgo: hours,
			Source:   domain.SourceUpstream,
		}, nil
	}
	return domain.RawSnapshot{}, lastErr
}

func (c *Client) doFetch(ctx context.Context, hours int) (any, error) {
	url := fmt.Sprintf(c.urlTemplate, hours)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bucket %02d: %w", hours, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bucket %02d: status %d", hours, resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("bucket %02d: decode body: %w", hours, err)
	}
	return payload, nil
}

// clampHours floors out-of-range bucket requests into [0, 23] rather than
// rejecting them.
func clampHours(hours int) int {
	if hours < 0 {
		return 0
	}
	if hours > oldestBucket {
		return oldestBucket
	}
	return hours
}
