package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/jartic"
	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/network"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
	"github.com/couchcryptid/traffic-congestion-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipeline_WithMockFeed drives a full run over the testdata road network
// and a recorded feed response served over HTTP.
func TestPipeline_WithMockFeed(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	feed, err := os.ReadFile(filepath.Join("testdata", "feed.geojson"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	store := network.NewStore(geojson.FileLoader{Path: filepath.Join("testdata", "roads.geojson")}, discardLogger(), metrics)
	require.NoError(t, store.Refresh(context.Background()))
	require.Equal(t, 5, store.Current().Len())

	cfg := &config.Config{
		FeedURL:      srv.URL,
		FeedTimeout:  5 * time.Second,
		FeedRoadType: 3,
	}
	client := jartic.NewClient(cfg, discardLogger(), metrics)

	p := pipeline.New(client, store, nil, testOptions(), discardLogger(), metrics)
	r, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.SourceLive, r.SourceKind)
	assert.Equal(t, int64(202404261505), r.TimeCode)
	assert.Equal(t, store.Current().ID(), r.NetworkID)
	assert.Zero(t, r.Discarded)

	// The Osaka segment lies outside the bbox and is not part of the run.
	assert.Equal(t, 4, r.Coverage.TotalRoads)
	assert.Equal(t, 4, r.Coverage.MatchedRoads)
	assert.InDelta(t, 1.0, r.Coverage.CoverageRate, 1e-9)
	assert.Equal(t, 7, r.Coverage.TrafficPoints)
	assert.Equal(t, 6, r.Coverage.MatchedPoints)

	require.Len(t, r.Segments, 4)
	byID := make(map[string]domain.ClassifiedSegment, len(r.Segments))
	for _, s := range r.Segments {
		byID[s.SegmentID] = s
	}

	low := byID["001"]
	assert.Equal(t, domain.LevelLow, low.Level)
	assert.Equal(t, 2, low.ObservationCount)
	require.NotNil(t, low.MeanSpeed)
	assert.InDelta(t, 45.0, *low.MeanSpeed, 1e-9)
	require.NotNil(t, low.MeanTravelTime)
	assert.InDelta(t, 16.0, *low.MeanTravelTime, 1e-9)
	require.NotNil(t, low.Name)
	assert.Equal(t, "Route A", *low.Name)

	assert.Equal(t, domain.LevelMedium, byID["002"].Level)

	high := byID["003"]
	assert.Equal(t, domain.LevelHigh, high.Level)
	require.NotNil(t, high.MeanSpeed)
	assert.InDelta(t, 12.0, *high.MeanSpeed, 1e-9)
	assert.Nil(t, high.Name)

	// Out-of-range speed and negative travel time are dropped, not averaged.
	unknown := byID["004"]
	assert.Equal(t, domain.LevelUnknown, unknown.Level)
	assert.Nil(t, unknown.MeanSpeed)
	assert.Nil(t, unknown.MeanTravelTime)
	require.NotNil(t, unknown.MeanLinkLength)
	assert.InDelta(t, 200.0, *unknown.MeanLinkLength, 1e-9)

	stats := r.Statistics
	assert.Equal(t, 4, stats.TotalSegments)
	for _, level := range []domain.Level{domain.LevelLow, domain.LevelMedium, domain.LevelHigh, domain.LevelUnknown} {
		assert.Equal(t, 1, stats.CongestionCounts[level], level)
		assert.InDelta(t, 25.0, stats.CongestionPercentages[level], 1e-9, level)
	}
	assert.Equal(t, 6, stats.ObservationStats.TotalObservations)
	assert.Equal(t, 3, stats.SpeedStats.Count)

	layer := geojson.CongestionLayer(r)
	assert.Len(t, layer.Features, 4)
	assert.Equal(t, "live", layer.ExtraMembers["source_kind"])
}
