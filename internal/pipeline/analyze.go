package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/spatial"
)

// AnalysisOptions parameterises one analysis pass.
type AnalysisOptions struct {
	MaxMatchDistance float64 // metres
	Thresholds       domain.Thresholds
	Logger           *slog.Logger // receives data-integrity warnings; may be nil
}

// Analysis is the outcome of match, aggregate, classify and summarise over
// one observation set.
type Analysis struct {
	Matched    []domain.MatchedObservation
	Segments   []domain.ClassifiedSegment
	Statistics domain.StatisticsSnapshot
	Coverage   domain.CoverageStats
	Discarded  int
	Unmatched  int
}

// Analyze runs the congestion core over observations and the road segments
// they should be matched against. It performs no I/O. The only error is a
// configuration error: a negative match distance or invalid thresholds.
func Analyze(observations []domain.Observation, segments []domain.RoadSegment, opts AnalysisOptions) (Analysis, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("validate thresholds: %w", err)
	}

	// An empty network still yields one unmatched record per valid observation.
	report, err := spatial.MatchIndex(spatial.NewIndex(segments), observations, opts.MaxMatchDistance)
	if err != nil {
		return Analysis{}, fmt.Errorf("match observations: %w", err)
	}

	aggregated := domain.Aggregate(report.Matched, segments, opts.Logger)
	classified := domain.ClassifyAll(aggregated, opts.Thresholds)

	return Analysis{
		Matched:    report.Matched,
		Segments:   classified,
		Statistics: domain.Summarize(classified),
		Coverage:   domain.Coverage(report.Matched, len(segments)),
		Discarded:  report.Discarded,
		Unmatched:  report.Unmatched,
	}, nil
}
