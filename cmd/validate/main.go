// Command validate runs the congestion analysis offline over a road network
// file and an observation feed file and checks the integrity of every stage:
// inputs, spatial matching, aggregation, classification and statistics.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -roads data/mock/roads.geojson \
//	  -feed data/mock/feed.geojson \
//	  -max-distance 200
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/network"
	"github.com/couchcryptid/traffic-congestion-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	roadsPath := flag.String("roads", "", "path to the road network GeoJSON")
	feedPath := flag.String("feed", "", "path to the observation feed GeoJSON")
	maxDistance := flag.Float64("max-distance", 200, "match cutoff in metres")
	high := flag.Float64("high-speed", 30, "speed at or above which a segment is low congestion")
	medium := flag.Float64("medium-speed", 20, "speed at or above which a segment is medium congestion")
	flag.Parse()

	if *roadsPath == "" || *feedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	thresholds := domain.Thresholds{HighSpeed: *high, MediumSpeed: *medium}
	if code := run(*roadsPath, *feedPath, *maxDistance, thresholds); code != 0 {
		os.Exit(code)
	}
}

func run(roadsPath, feedPath string, maxDistance float64, thresholds domain.Thresholds) int {
	// Fixed clock so repeated validations print identical statistics.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 6, 10, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Println("=== Congestion Analysis Integrity Validation ===")
	fmt.Println()

	roadData, err := os.ReadFile(roadsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read road network: %v\n", err)
		return 1
	}
	segments, err := geojson.ParseRoadNetwork(roadData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse road network: %v\n", err)
		return 1
	}

	feedData, err := os.ReadFile(feedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read feed: %v\n", err)
		return 1
	}
	observations, err := geojson.ParseObservations(feedData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse feed: %v\n", err)
		return 1
	}

	analysis, err := pipeline.Analyze(observations, segments, pipeline.AnalysisOptions{
		MaxMatchDistance: maxDistance,
		Thresholds:       thresholds,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: analyze: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateInputs(segments, observations),
		validateMatching(analysis, segments, len(observations), maxDistance),
		validateAggregation(analysis),
		validateClassification(analysis, thresholds),
		validateStatistics(analysis),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Inputs: %d segments, %d observations (%d discarded, %d unmatched)\n",
		len(segments), len(observations), analysis.Discarded, analysis.Unmatched)
	fmt.Printf("Summary: %s\n", analysis.Statistics.Summary)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateInputs(segments []domain.RoadSegment, observations []domain.Observation) *phase {
	p := &phase{name: "Phase 1: Input integrity"}

	if _, err := network.NewSnapshot(segments, domain.Now()); err != nil {
		p.errorf("road network rejected: %v", err)
	}
	for _, o := range observations {
		if o.Speed != nil && (*o.Speed < 0 || *o.Speed > domain.MaxPlausibleSpeed) {
			p.errorf("observation %s: speed %.2f outside [0, %.0f]", o.ID, *o.Speed, domain.MaxPlausibleSpeed)
		}
		if o.TravelTime != nil && *o.TravelTime < 0 {
			p.errorf("observation %s: negative travel time %.2f", o.ID, *o.TravelTime)
		}
		if o.LinkLength != nil && *o.LinkLength < 0 {
			p.errorf("observation %s: negative link length %.2f", o.ID, *o.LinkLength)
		}
	}
	return p
}

func validateMatching(a pipeline.Analysis, segments []domain.RoadSegment, inputCount int, maxDistance float64) *phase {
	p := &phase{name: "Phase 2: Spatial matching"}

	known := make(map[string]bool, len(segments))
	for _, s := range segments {
		known[s.ID] = true
	}

	if got := len(a.Matched) + a.Discarded; got != inputCount {
		p.errorf("matched records + discarded = %d, want %d input observations", got, inputCount)
	}

	unmatched := 0
	for _, m := range a.Matched {
		if (m.SegmentID == nil) != (m.Distance == nil) {
			p.errorf("observation %s: segment id and distance must both be set or both be nil", m.ID)
			continue
		}
		if !m.Matched() {
			unmatched++
			continue
		}
		if !known[*m.SegmentID] {
			p.errorf("observation %s: matched unknown segment %s", m.ID, *m.SegmentID)
		}
		if *m.Distance < 0 || *m.Distance > maxDistance {
			p.errorf("observation %s: distance %.2f m outside [0, %.0f]", m.ID, *m.Distance, maxDistance)
		}
	}
	if unmatched != a.Unmatched {
		p.errorf("unmatched count %d does not match report %d", unmatched, a.Unmatched)
	}
	return p
}

func validateAggregation(a pipeline.Analysis) *phase {
	p := &phase{name: "Phase 3: Aggregation"}

	seen := make(map[string]bool, len(a.Segments))
	total := 0
	for _, s := range a.Segments {
		if seen[s.SegmentID] {
			p.errorf("segment %s aggregated more than once", s.SegmentID)
		}
		seen[s.SegmentID] = true
		if s.ObservationCount < 1 {
			p.errorf("segment %s: observation count %d", s.SegmentID, s.ObservationCount)
		}
		total += s.ObservationCount
	}
	if total != a.Coverage.MatchedPoints {
		p.errorf("sum of observation counts %d != matched points %d", total, a.Coverage.MatchedPoints)
	}
	if a.Coverage.MatchedRoads != len(a.Segments) {
		p.errorf("matched roads %d != aggregated segments %d", a.Coverage.MatchedRoads, len(a.Segments))
	}
	return p
}

func validateClassification(a pipeline.Analysis, t domain.Thresholds) *phase {
	p := &phase{name: "Phase 4: Classification"}

	for _, s := range a.Segments {
		want := domain.LevelFor(s.MeanSpeed, t)
		if s.Level != want {
			p.errorf("segment %s: level %s, want %s for speed %s", s.SegmentID, s.Level, want, ptrFloat(s.MeanSpeed))
		}
		if s.Color != s.Level.Color() || s.Label != s.Level.Label() || s.Width != s.Level.Width() {
			p.errorf("segment %s: display style does not match level %s", s.SegmentID, s.Level)
		}
	}
	return p
}

func validateStatistics(a pipeline.Analysis) *phase {
	p := &phase{name: "Phase 5: Statistics"}
	st := a.Statistics

	if st.TotalSegments != len(a.Segments) {
		p.errorf("total segments %d != %d", st.TotalSegments, len(a.Segments))
	}

	countSum := 0
	pctSum := 0.0
	for _, l := range domain.Levels {
		countSum += st.CongestionCounts[l]
		pctSum += st.CongestionPercentages[l]
	}
	if countSum != st.TotalSegments {
		p.errorf("level counts sum to %d, want %d", countSum, st.TotalSegments)
	}
	if st.TotalSegments > 0 && math.Abs(pctSum-100) > 0.5 {
		p.errorf("level percentages sum to %.2f, want 100", pctSum)
	}
	if st.TotalSegments == 0 && pctSum != 0 {
		p.errorf("empty run has non-zero percentages (%.2f)", pctSum)
	}

	if st.SpeedStats.Count > 0 {
		ss := st.SpeedStats
		if ss.Min == nil || ss.Max == nil || ss.Median == nil {
			p.errorf("speed stats missing min/max/median with %d values", ss.Count)
		} else if *ss.Min > *ss.Median || *ss.Median > *ss.Max {
			p.errorf("speed stats out of order: min %.2f median %.2f max %.2f", *ss.Min, *ss.Median, *ss.Max)
		}
	}
	if st.ObservationStats.TotalObservations != a.Coverage.MatchedPoints {
		p.errorf("statistics total observations %d != matched points %d",
			st.ObservationStats.TotalObservations, a.Coverage.MatchedPoints)
	}
	return p
}

// ── Helpers ──

func ptrFloat(v *float64) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%.2f", *v)
}
