package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SourceKind names where a run's observations came from.
type SourceKind string

const (
	SourceLive      SourceKind = "live"
	SourceSynthetic SourceKind = "synthetic"
)

// Result is the output of one pipeline run. Reason is set whenever the run
// did not use live data, so callers can tell a fallback from a real feed.
type Result struct {
	RunID       uuid.UUID           `json:"run_id"`
	SourceKind  SourceKind          `json:"source_kind"`
	Reason      string              `json:"reason,omitempty"`
	TimeCode    int64               `json:"time_code"`
	NetworkID   uuid.UUID           `json:"network_id"`
	Segments    []ClassifiedSegment `json:"segments"`
	Statistics  StatisticsSnapshot  `json:"statistics"`
	Coverage    CoverageStats       `json:"coverage"`
	Discarded   int                 `json:"discarded_observations"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// IsFallback reports whether the run used synthetic data.
func (r Result) IsFallback() bool {
	return r.SourceKind == SourceSynthetic
}

// CoverageStats describes how well observations covered the road network.
type CoverageStats struct {
	TotalRoads    int            `json:"total_roads"`
	MatchedRoads  int            `json:"matched_roads"`
	CoverageRate  float64        `json:"coverage_rate"`
	TrafficPoints int            `json:"traffic_points"`
	MatchedPoints int            `json:"matched_points"`
	Distance      *DistanceStats `json:"distance_stats,omitempty"`
}

// DistanceStats summarises observation-to-segment distances in metres.
type DistanceStats struct {
	Mean   float64  `json:"mean"`
	Median float64  `json:"median"`
	Max    float64  `json:"max"`
	Std    *float64 `json:"std,omitempty"`
}

// Coverage computes road coverage for a matched observation set against a
// network of totalRoads segments.
func Coverage(matched []MatchedObservation, totalRoads int) CoverageStats {
	cov := CoverageStats{TotalRoads: totalRoads, TrafficPoints: len(matched)}
	roads := make(map[string]struct{})
	var distances []float64
	for i := range matched {
		if !matched[i].Matched() {
			continue
		}
		cov.MatchedPoints++
		roads[*matched[i].SegmentID] = struct{}{}
		if matched[i].Distance != nil {
			distances = append(distances, *matched[i].Distance)
		}
	}
	cov.MatchedRoads = len(roads)
	if totalRoads > 0 {
		cov.CoverageRate = float64(cov.MatchedRoads) / float64(totalRoads)
	}
	if len(distances) > 0 {
		sort.Float64s(distances)
		ds := &DistanceStats{
			Mean:   meanOf(distances),
			Median: quantile(distances, 0.5),
			Max:    distances[len(distances)-1],
		}
		if len(distances) > 1 {
			ds.Std = Float64(sampleStd(distances))
		}
		cov.Distance = ds
	}
	return cov
}
