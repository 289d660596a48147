package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/golang/geo/s2"
)

// densityCellLevel is the S2 level used to bucket segments (~1 km² cells).
const densityCellLevel = 13

// StatisticsSnapshot summarises one run's classified segments.
type StatisticsSnapshot struct {
	TotalSegments         int                   `json:"total_segments"`
	CongestionCounts      map[Level]int         `json:"congestion_counts"`
	CongestionPercentages map[Level]float64     `json:"congestion_percentages"`
	SpeedStats            SpeedStats            `json:"speed_stats"`
	TravelTimeStats       *TravelTimeStats      `json:"travel_time_stats,omitempty"`
	ObservationStats      ObservationStats      `json:"observation_stats"`
	ByClass               map[string]ClassStats `json:"by_class"`
	SpeedRanges           []SpeedRange          `json:"speed_ranges"`
	Density               DensityStats          `json:"density"`
	Summary               string                `json:"summary"`
	GeneratedAt           time.Time             `json:"generated_at"`
}

// SpeedStats describes the distribution of segment mean speeds. Everything but
// Count is omitted when no segment has a speed. Std is nil below two values.
type SpeedStats struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Std    *float64 `json:"std,omitempty"`
	P25    *float64 `json:"p25,omitempty"`
	P75    *float64 `json:"p75,omitempty"`
}

// TravelTimeStats describes segment mean travel times in seconds.
type TravelTimeStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ObservationStats describes how observations spread over segments.
type ObservationStats struct {
	TotalObservations int     `json:"total_observations"`
	SegmentsWithData  int     `json:"segments_with_data"`
	MeanPerSegment    float64 `json:"mean_per_segment"`
	MaxPerSegment     int     `json:"max_per_segment"`
}

// ClassStats is the per-road-class breakdown.
type ClassStats struct {
	Segments  int           `json:"segments"`
	Counts    map[Level]int `json:"congestion_counts"`
	MeanSpeed *float64      `json:"mean_speed,omitempty"`
}

// SpeedRange counts segments whose mean speed falls in [Min, Max).
// Max is nil for the open-ended top bucket.
type SpeedRange struct {
	Label      string   `json:"label"`
	Min        float64  `json:"min"`
	Max        *float64 `json:"max,omitempty"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
}

// DensityStats buckets segment centres into S2 cells.
type DensityStats struct {
	CellLevel              int `json:"cell_level"`
	OccupiedCells          int `json:"occupied_cells"`
	MaxSegmentsPerCell     int `json:"max_segments_per_cell"`
	MaxObservationsPerCell int `json:"max_observations_per_cell"`
}

var speedBuckets = []struct {
	label    string
	min, max float64
}{
	{"0-10", 0, 10},
	{"10-20", 10, 20},
	{"20-30", 20, 30},
	{"30-50", 30, 50},
	{"50+", 50, math.Inf(1)},
}

// Summarize computes the statistics snapshot for a set of classified
// segments. It never fails; an empty input yields a zeroed snapshot.
func Summarize(segments []ClassifiedSegment) StatisticsSnapshot {
	total := len(segments)
	snap := StatisticsSnapshot{
		TotalSegments:         total,
		CongestionCounts:      make(map[Level]int, len(Levels)),
		CongestionPercentages: make(map[Level]float64, len(Levels)),
		ByClass:               make(map[string]ClassStats),
		GeneratedAt:           clock.Now().UTC(),
	}
	for _, l := range Levels {
		snap.CongestionCounts[l] = 0
		snap.CongestionPercentages[l] = 0
	}

	var speeds, travelTimes []float64
	classSpeeds := make(map[string][]float64)

	for i := range segments {
		s := &segments[i]
		snap.CongestionCounts[s.Level]++

		if s.MeanSpeed != nil && finite(*s.MeanSpeed) {
			speeds = append(speeds, *s.MeanSpeed)
		}
		if s.MeanTravelTime != nil && finite(*s.MeanTravelTime) {
			travelTimes = append(travelTimes, *s.MeanTravelTime)
		}

		snap.ObservationStats.TotalObservations += s.ObservationCount
		if s.ObservationCount > 0 {
			snap.ObservationStats.SegmentsWithData++
		}
		if s.ObservationCount > snap.ObservationStats.MaxPerSegment {
			snap.ObservationStats.MaxPerSegment = s.ObservationCount
		}

		class := "unknown"
		if s.Class != nil && *s.Class != "" {
			class = *s.Class
		}
		cs := snap.ByClass[class]
		if cs.Counts == nil {
			cs.Counts = make(map[Level]int, len(Levels))
		}
		cs.Segments++
		cs.Counts[s.Level]++
		snap.ByClass[class] = cs
		if s.MeanSpeed != nil && finite(*s.MeanSpeed) {
			classSpeeds[class] = append(classSpeeds[class], *s.MeanSpeed)
		}
	}

	if total > 0 {
		for l, n := range snap.CongestionCounts {
			snap.CongestionPercentages[l] = round1(float64(n) / float64(total) * 100)
		}
		snap.ObservationStats.MeanPerSegment = round1(float64(snap.ObservationStats.TotalObservations) / float64(total))
	}

	for class, vals := range classSpeeds {
		cs := snap.ByClass[class]
		cs.MeanSpeed = Float64(meanOf(vals))
		snap.ByClass[class] = cs
	}

	snap.SpeedStats = speedStats(speeds)
	if len(travelTimes) > 0 {
		sorted := sortedCopy(travelTimes)
		snap.TravelTimeStats = &TravelTimeStats{
			Count:  len(sorted),
			Mean:   meanOf(sorted),
			Median: quantile(sorted, 0.5),
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
		}
	}
	snap.SpeedRanges = speedRanges(speeds)
	snap.Density = density(segments)
	snap.Summary = summaryText(snap)

	return snap
}

func speedStats(speeds []float64) SpeedStats {
	if len(speeds) == 0 {
		return SpeedStats{Count: 0}
	}
	sorted := sortedCopy(speeds)
	st := SpeedStats{
		Count:  len(sorted),
		Mean:   Float64(meanOf(sorted)),
		Median: Float64(quantile(sorted, 0.5)),
		Min:    Float64(sorted[0]),
		Max:    Float64(sorted[len(sorted)-1]),
		P25:    Float64(quantile(sorted, 0.25)),
		P75:    Float64(quantile(sorted, 0.75)),
	}
	if len(sorted) > 1 {
		st.Std = Float64(sampleStd(sorted))
	}
	return st
}

func speedRanges(speeds []float64) []SpeedRange {
	out := make([]SpeedRange, len(speedBuckets))
	for i, b := range speedBuckets {
		out[i] = SpeedRange{Label: b.label, Min: b.min}
		if !math.IsInf(b.max, 1) {
			out[i].Max = Float64(b.max)
		}
	}
	for _, v := range speeds {
		for i, b := range speedBuckets {
			if v >= b.min && v < b.max {
				out[i].Count++
				break
			}
		}
	}
	if len(speeds) > 0 {
		for i := range out {
			out[i].Percentage = round1(float64(out[i].Count) / float64(len(speeds)) * 100)
		}
	}
	return out
}

func density(segments []ClassifiedSegment) DensityStats {
	d := DensityStats{CellLevel: densityCellLevel}
	segCount := make(map[s2.CellID]int)
	obsCount := make(map[s2.CellID]int)
	for i := range segments {
		if len(segments[i].Geometry) == 0 {
			continue
		}
		c := segments[i].Geometry.Bound().Center()
		ll := s2.LatLngFromDegrees(c.Lat(), c.Lon())
		if !ll.IsValid() {
			continue
		}
		cell := s2.CellIDFromLatLng(ll).Parent(densityCellLevel)
		segCount[cell]++
		obsCount[cell] += segments[i].ObservationCount
	}
	d.OccupiedCells = len(segCount)
	for cell, n := range segCount {
		d.MaxSegmentsPerCell = max(d.MaxSegmentsPerCell, n)
		d.MaxObservationsPerCell = max(d.MaxObservationsPerCell, obsCount[cell])
	}
	return d
}

func summaryText(snap StatisticsSnapshot) string {
	if snap.TotalSegments == 0 {
		return "No data available."
	}
	parts := []string{fmt.Sprintf("Segments: %d", snap.TotalSegments)}
	for _, l := range []Level{LevelLow, LevelMedium, LevelHigh} {
		if pct := snap.CongestionPercentages[l]; pct > 0 {
			parts = append(parts, fmt.Sprintf("%s: %.1f%%", l.Label(), pct))
		}
	}
	if snap.SpeedStats.Mean != nil && *snap.SpeedStats.Mean > 0 {
		parts = append(parts, fmt.Sprintf("Mean speed: %.1f km/h", *snap.SpeedStats.Mean))
	}
	return strings.Join(parts, " | ")
}

func sortedCopy(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	sort.Float64s(out)
	return out
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// quantile uses linear interpolation between closest ranks. sorted must be
// ascending and non-empty.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func sampleStd(vals []float64) float64 {
	m := meanOf(vals)
	var ss float64
	for _, v := range vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
