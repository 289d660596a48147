package spatial

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metresPerDegreeLat matches the sphere used by Web Mercator.
const metresPerDegreeLat = 6378137 * math.Pi / 180

func north(p orb.Point, metres float64) orb.Point {
	return orb.Point{p.Lon(), p.Lat() + metres/metresPerDegreeLat}
}

func horizontal(id string, lat, lon0, lon1 float64) domain.RoadSegment {
	return domain.RoadSegment{ID: id, Geometry: orb.LineString{{lon0, lat}, {lon1, lat}}}
}

func obs(id string, p orb.Point) domain.Observation {
	return domain.Observation{ID: id, Location: p, Speed: domain.Float64(30)}
}

func TestMatch_Scenario(t *testing.T) {
	segments := []domain.RoadSegment{
		horizontal("S1", 35.68, 139.73, 139.74),
		horizontal("S2", 35.70, 139.75, 139.76),
		horizontal("S3", 35.72, 139.77, 139.78),
	}
	observations := []domain.Observation{
		obs("o1", north(orb.Point{139.735, 35.68}, 5)),
		obs("o2", north(orb.Point{139.755, 35.70}, 250)),
		obs("o3", north(orb.Point{139.775, 35.72}, -15)),
	}

	report, err := Match(observations, segments, 200)
	require.NoError(t, err)
	require.Len(t, report.Matched, 3)

	assert.Equal(t, "S1", *report.Matched[0].SegmentID)
	assert.InDelta(t, 5, *report.Matched[0].Distance, 0.05)

	assert.Nil(t, report.Matched[1].SegmentID)
	assert.Nil(t, report.Matched[1].Distance)

	assert.Equal(t, "S3", *report.Matched[2].SegmentID)
	assert.InDelta(t, 15, *report.Matched[2].Distance, 0.05)

	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 0, report.Discarded)

	aggregated := domain.Aggregate(report.Matched, segments, nil)
	assert.Len(t, aggregated, 2)
}

func TestMatch_EmptyInputs(t *testing.T) {
	segs := []domain.RoadSegment{horizontal("S1", 35.68, 139.73, 139.74)}

	report, err := Match(nil, segs, 200)
	require.NoError(t, err)
	assert.Empty(t, report.Matched)

	report, err = Match([]domain.Observation{obs("o1", orb.Point{139.735, 35.68})}, nil, 200)
	require.NoError(t, err)
	assert.Empty(t, report.Matched)
}

func TestMatch_NegativeDistance(t *testing.T) {
	_, err := Match(nil, nil, -1)
	assert.ErrorIs(t, err, ErrNegativeDistance)
}

func TestMatch_DiscardsInvalidLocations(t *testing.T) {
	segs := []domain.RoadSegment{horizontal("S1", 35.68, 139.73, 139.74)}
	observations := []domain.Observation{
		obs("nan", orb.Point{math.NaN(), 35.68}),
		obs("lat-out-of-range", orb.Point{139.735, 95}),
		obs("inf", orb.Point{math.Inf(1), 0}),
		obs("ok", orb.Point{139.735, 35.68}),
	}

	report, err := Match(observations, segs, 50)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Discarded)
	require.Len(t, report.Matched, 1)
	assert.Equal(t, "ok", report.Matched[0].ID)
	assert.InDelta(t, 0, *report.Matched[0].Distance, 1e-6)
}

func TestMatch_DiscardsPolarLocations(t *testing.T) {
	segs := []domain.RoadSegment{horizontal("S1", 35.68, 139.73, 139.74)}
	observations := []domain.Observation{
		obs("north-pole", orb.Point{0, 90}),
		obs("south-pole", orb.Point{0, -90}),
		obs("near-pole", orb.Point{139.735, 89.9999999}),
		obs("edge", orb.Point{139.735, MaxLatitude + 1e-6}),
	}

	report, err := Match(observations, segs, 1e9)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Discarded)
	assert.Equal(t, 0, report.Unmatched)
	assert.Empty(t, report.Matched)
}

func TestMatch_HighLatitudeDistance(t *testing.T) {
	segs := []domain.RoadSegment{horizontal("S1", 60, 10, 11)}
	// One degree due north of the segment midpoint.
	report, err := Match([]domain.Observation{obs("o1", orb.Point{10.5, 61})}, segs, 200_000)
	require.NoError(t, err)

	require.Len(t, report.Matched, 1)
	require.NotNil(t, report.Matched[0].Distance)
	assert.InDelta(t, metresPerDegreeLat, *report.Matched[0].Distance, 50)
}

func TestMatch_CopiesSegmentAttributes(t *testing.T) {
	seg := horizontal("S1", 35.68, 139.73, 139.74)
	seg.Name = domain.String("Route 6")
	seg.Class = domain.String("3")

	report, err := Match([]domain.Observation{obs("o1", orb.Point{139.735, 35.6801})}, []domain.RoadSegment{seg}, 100)
	require.NoError(t, err)

	require.Len(t, report.Matched, 1)
	assert.Equal(t, "Route 6", *report.Matched[0].SegmentName)
	assert.Equal(t, "3", *report.Matched[0].SegmentClass)
}

func TestMatch_ZeroCutoff(t *testing.T) {
	segs := []domain.RoadSegment{horizontal("S1", 35.68, 139.73, 139.74)}
	observations := []domain.Observation{
		obs("on-line", orb.Point{139.735, 35.68}),
		obs("off-line", north(orb.Point{139.735, 35.68}, 1)),
	}

	report, err := Match(observations, segs, 0)
	require.NoError(t, err)
	require.Len(t, report.Matched, 2)
	assert.True(t, report.Matched[0].Matched())
	assert.False(t, report.Matched[1].Matched())
}

func TestMatch_DistanceBoundProperty(t *testing.T) {
	segments := gridSegments(10)
	r := rand.New(rand.NewPCG(7, 11))
	observations := make([]domain.Observation, 500)
	for i := range observations {
		observations[i] = obs(fmt.Sprintf("o%d", i), orb.Point{139.72 + r.Float64()*0.09, 35.66 + r.Float64()*0.09})
	}

	for _, cutoff := range []float64{0, 10, 50, 200, 1000} {
		t.Run(fmt.Sprintf("cutoff %v", cutoff), func(t *testing.T) {
			report, err := Match(observations, segments, cutoff)
			require.NoError(t, err)
			for _, m := range report.Matched {
				if m.SegmentID != nil {
					require.NotNil(t, m.Distance)
					assert.LessOrEqual(t, *m.Distance, cutoff)
				} else {
					assert.Nil(t, m.Distance)
				}
			}
		})
	}
}
