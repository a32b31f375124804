// Package windcontext implements the per-click local context lookup against
// the external wind/rarity collaborator. The collaborator owns all
// computation (winds aloft interpolation, station-density grid); this
// package is a keyed HTTP lookup with a cache in front.
package windcontext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/observability"
)

// Client implements domain.ContextProvider against the context service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a context lookup client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Lookup queries wind and rarity context for a coordinate.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (domain.LocalContext, error) {
	params := url.Values{
		"lat": {fmt.Sprintf("%.4f", lat)},
		"lon": {fmt.Sprintf("%.4f", lon)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/context?"+params.Encode(), nil)
	if err != nil {
		return domain.LocalContext{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ContextLookups.WithLabelValues("error").Inc()
		return domain.LocalContext{}, fmt.Errorf("context lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.ContextLookups.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.LocalContext{}, fmt.Errorf("context service error: status %d: %s", resp.StatusCode, body)
	}

	var ctxResp response
	if err := json.NewDecoder(resp.Body).Decode(&ctxResp); err != nil {
		c.metrics.ContextLookups.WithLabelValues("error").Inc()
		return domain.LocalContext{}, fmt.Errorf("decode response: %w", err)
	}

	c.metrics.ContextLookups.WithLabelValues("success").Inc()
	return domain.LocalContext{
		WindDirectionDeg: ctxResp.Wind.DirectionDeg,
		WindSpeedKnots:   ctxResp.Wind.SpeedKnots,
		RarityScore:      ctxResp.Rarity.Score,
		StationsNearby:   ctxResp.Rarity.StationsNearby,
	}, nil
}

// Context service response types.

type response struct {
	Wind struct {
		DirectionDeg float64 `json:"direction_deg"`
		SpeedKnots   float64 `json:"speed_knots"`
	} `json:"wind"`
	Rarity struct {
		Score          float64 `json:"score"`
		StationsNearby int     `json:"stations_nearby"`
	} `json:"rarity"`
}
