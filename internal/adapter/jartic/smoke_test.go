//go:build jartic

package jartic

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real JARTIC open traffic API.
// Run with: go test -tags=jartic ./internal/adapter/jartic/ -v -count=1

func smokeClient() *Client {
	return &Client{
		baseURL:    "https://api.jartic-open-traffic.org/geoserver",
		roadType:   3,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_FetchObservations(t *testing.T) {
	c := smokeClient()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	// Step back one extra slot so the upstream aggregation has finished.
	code := domain.TimeCodeFor(time.Now().In(tokyo).Add(-5 * time.Minute))

	obs, err := c.FetchObservations(context.Background(), testBBox, code)
	require.NoError(t, err)
	t.Logf("time code %d: %d observations", code, len(obs))

	for _, o := range obs {
		assert.NotEmpty(t, o.ID)
		assert.Equal(t, code, o.TimestampCode)
		if o.Speed != nil {
			assert.LessOrEqual(t, *o.Speed, domain.MaxPlausibleSpeed)
		}
	}
}
