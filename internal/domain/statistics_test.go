package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(id string, speed *float64, count int, class string) ClassifiedSegment {
	return Classify(AggregatedSegment{
		SegmentID:        id,
		MeanSpeed:        speed,
		ObservationCount: count,
		Class:            String(class),
		Geometry:         orb.LineString{{139.76, 35.70}, {139.761, 35.701}},
	}, DefaultThresholds())
}

func TestSummarize_Empty(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	snap := Summarize(nil)

	assert.Equal(t, 0, snap.TotalSegments)
	assert.Equal(t, 0, snap.SpeedStats.Count)
	assert.Nil(t, snap.SpeedStats.Mean)
	assert.Nil(t, snap.TravelTimeStats)
	for _, l := range Levels {
		assert.Equal(t, 0, snap.CongestionCounts[l])
		assert.Zero(t, snap.CongestionPercentages[l])
	}
	assert.Zero(t, snap.ObservationStats.MeanPerSegment)
	assert.Equal(t, fixed, snap.GeneratedAt)
	assert.Equal(t, "No data available.", snap.Summary)

	data, err := json.Marshal(snap.SpeedStats)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0}`, string(data))
}

func TestSummarize(t *testing.T) {
	segs := []ClassifiedSegment{
		classified("a", Float64(10), 2, "1"),
		classified("b", Float64(25), 1, "1"),
		classified("c", Float64(35), 4, "2"),
		classified("d", nil, 3, ""),
	}
	segs[0].MeanTravelTime = Float64(60)
	segs[2].MeanTravelTime = Float64(20)

	snap := Summarize(segs)

	assert.Equal(t, 4, snap.TotalSegments)
	assert.Equal(t, map[Level]int{LevelLow: 1, LevelMedium: 1, LevelHigh: 1, LevelUnknown: 1}, snap.CongestionCounts)
	assert.InDelta(t, 25.0, snap.CongestionPercentages[LevelLow], 1e-9)

	t.Run("speed stats skip missing speeds", func(t *testing.T) {
		st := snap.SpeedStats
		assert.Equal(t, 3, st.Count)
		assert.InDelta(t, 70.0/3, *st.Mean, 1e-9)
		assert.InDelta(t, 25, *st.Median, 1e-9)
		assert.InDelta(t, 10, *st.Min, 1e-9)
		assert.InDelta(t, 35, *st.Max, 1e-9)
		assert.InDelta(t, 17.5, *st.P25, 1e-9)
		assert.InDelta(t, 30, *st.P75, 1e-9)
		assert.InDelta(t, 12.583057, *st.Std, 1e-6)
	})

	t.Run("observation stats", func(t *testing.T) {
		ob := snap.ObservationStats
		assert.Equal(t, 10, ob.TotalObservations)
		assert.Equal(t, 4, ob.SegmentsWithData)
		assert.InDelta(t, 2.5, ob.MeanPerSegment, 1e-9)
		assert.Equal(t, 4, ob.MaxPerSegment)
	})

	t.Run("travel time stats", func(t *testing.T) {
		require.NotNil(t, snap.TravelTimeStats)
		assert.Equal(t, 2, snap.TravelTimeStats.Count)
		assert.InDelta(t, 40, snap.TravelTimeStats.Mean, 1e-9)
	})

	t.Run("by class", func(t *testing.T) {
		require.Contains(t, snap.ByClass, "1")
		assert.Equal(t, 2, snap.ByClass["1"].Segments)
		assert.InDelta(t, 17.5, *snap.ByClass["1"].MeanSpeed, 1e-9)
		assert.Equal(t, 1, snap.ByClass["unknown"].Segments)
		assert.Nil(t, snap.ByClass["unknown"].MeanSpeed)
	})

	t.Run("speed ranges", func(t *testing.T) {
		require.Len(t, snap.SpeedRanges, 5)
		counts := map[string]int{}
		for _, r := range snap.SpeedRanges {
			counts[r.Label] = r.Count
		}
		assert.Equal(t, map[string]int{"0-10": 0, "10-20": 1, "20-30": 1, "30-50": 1, "50+": 0}, counts)
		assert.Nil(t, snap.SpeedRanges[4].Max)
	})

	t.Run("density", func(t *testing.T) {
		assert.Equal(t, 13, snap.Density.CellLevel)
		assert.Equal(t, 1, snap.Density.OccupiedCells)
		assert.Equal(t, 4, snap.Density.MaxSegmentsPerCell)
		assert.Equal(t, 10, snap.Density.MaxObservationsPerCell)
	})

	t.Run("summary", func(t *testing.T) {
		assert.Contains(t, snap.Summary, "Segments: 4")
		assert.Contains(t, snap.Summary, "Congested: 25.0%")
		assert.Contains(t, snap.Summary, "Mean speed: 23.3 km/h")
	})
}

func TestSummarize_ExcludesNonFiniteSpeeds(t *testing.T) {
	segs := []ClassifiedSegment{
		classified("a", Float64(10), 2, "1"),
		classified("b", Float64(math.Inf(1)), 1, "1"),
		classified("c", Float64(math.Inf(-1)), 1, "2"),
	}
	segs[1].MeanTravelTime = Float64(math.Inf(1))

	snap := Summarize(segs)

	assert.Equal(t, 2, snap.CongestionCounts[LevelUnknown])
	assert.Equal(t, 1, snap.SpeedStats.Count)
	require.NotNil(t, snap.SpeedStats.Mean)
	assert.InDelta(t, 10, *snap.SpeedStats.Mean, 1e-9)
	assert.Nil(t, snap.TravelTimeStats)

	require.NotNil(t, snap.ByClass["1"].MeanSpeed)
	assert.InDelta(t, 10, *snap.ByClass["1"].MeanSpeed, 1e-9)
	assert.Nil(t, snap.ByClass["2"].MeanSpeed)

	_, err := json.Marshal(snap)
	assert.NoError(t, err)
}

func TestSummarize_PercentagesSumTo100(t *testing.T) {
	speeds := []*float64{Float64(5), Float64(22), Float64(31), nil, Float64(40), Float64(18), Float64(29)}
	segs := make([]ClassifiedSegment, len(speeds))
	for i, s := range speeds {
		segs[i] = classified(string(rune('a'+i)), s, 1, "")
	}

	snap := Summarize(segs)

	var sum float64
	for _, p := range snap.CongestionPercentages {
		sum += p
	}
	assert.InDelta(t, 100, sum, 0.1+1e-9)
}

func TestSummarize_ByteIdentical(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	segs := []ClassifiedSegment{
		classified("a", Float64(10), 2, "1"),
		classified("b", Float64(45), 1, "3"),
		classified("c", nil, 1, "2"),
	}

	first, err := json.Marshal(Summarize(segs))
	require.NoError(t, err)
	second, err := json.Marshal(Summarize(segs))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		sorted   []float64
		p        float64
		expected float64
	}{
		{"single value", []float64{7}, 0.25, 7},
		{"median even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"median odd", []float64{1, 2, 3}, 0.5, 2},
		{"p25 interpolated", []float64{10, 20, 30, 40, 50}, 0.25, 20},
		{"p75 interpolated", []float64{1, 2, 3, 4}, 0.75, 3.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, quantile(tt.sorted, tt.p), 1e-9)
		})
	}
}
