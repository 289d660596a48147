// Package jartic fetches 5-minute traffic measurements from the JARTIC open
// traffic WFS endpoint.
package jartic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
)

const typeName = "t_travospublic_measure_5m"

// maxResponseBytes bounds a single feed response.
const maxResponseBytes = 64 << 20

// Client queries the feed for observations inside a bounding box.
type Client struct {
	baseURL    string
	roadType   int
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client from FEED_URL, FEED_TIMEOUT and FEED_ROAD_TYPE.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:  cfg.FeedURL,
		roadType: cfg.FeedRoadType,
		httpClient: &http.Client{
			Timeout: cfg.FeedTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// FetchObservations returns the observations published for timeCode inside
// bbox. An empty slice with a nil error means the feed had nothing for the slot.
func (c *Client) FetchObservations(ctx context.Context, bbox domain.BBox, timeCode int64) ([]domain.Observation, error) {
	start := time.Now()
	obs, err := c.doRequest(ctx, c.requestURL(bbox, timeCode))
	c.metrics.FeedAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, err
	case len(obs) == 0:
		c.metrics.FeedRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.FeedRequests.WithLabelValues("success").Inc()
	}
	c.logger.Debug("feed fetched",
		"time_code", timeCode,
		"bbox", bbox.String(),
		"observations", len(obs),
		"duration", time.Since(start),
	)
	return obs, nil
}

func (c *Client) requestURL(bbox domain.BBox, timeCode int64) string {
	filter := fmt.Sprintf(`%s=%d AND %s=%d AND BBOX("ジオメトリ",%g,%g,%g,%g,'EPSG:4326')`,
		geojson.PropRoadType, c.roadType,
		geojson.PropTimeCode, timeCode,
		bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat,
	)
	params := url.Values{
		"service":      {"WFS"},
		"version":      {"2.0.0"},
		"request":      {"GetFeature"},
		"typeNames":    {typeName},
		"srsName":      {"EPSG:4326"},
		"outputFormat": {"application/json"},
		"exceptions":   {"application/json"},
		"cql_filter":   {filter},
	}
	return c.baseURL + "?" + params.Encode()
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("feed API error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}
	obs, err := geojson.ParseObservations(data)
	if err != nil {
		return nil, fmt.Errorf("parse feed response: %w", err)
	}
	return obs, nil
}
