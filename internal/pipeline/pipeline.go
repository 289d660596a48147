package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/network"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
	"github.com/couchcryptid/traffic-congestion-etl/internal/synthetic"
	"github.com/google/uuid"
)

// ObservationSource fetches live observations for one bounding box and
// 5-minute slot. An empty result and an error both trigger the synthetic fallback.
type ObservationSource interface {
	FetchObservations(ctx context.Context, bbox domain.BBox, timeCode int64) ([]domain.Observation, error)
}

// NetworkProvider hands out the current road-network snapshot.
type NetworkProvider interface {
	Current() *network.Snapshot
}

// Sink receives every completed run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r domain.Result) error
}

// Fallback reason codes, used as the fallbacks_total label.
const (
	ReasonForced   = "forced"
	ReasonDisabled = "disabled"
	ReasonError    = "error"
	ReasonEmpty    = "empty"
)

const (
	initialBackoff     = 200 * time.Millisecond
	maxBackoff         = 5 * time.Second
	maxPublishAttempts = 3
)

// Options holds the per-run parameters.
type Options struct {
	BBox             domain.BBox
	MaxMatchDistance float64
	Thresholds       domain.Thresholds
	Interval         time.Duration
	FeedTimeout      time.Duration
	Location         *time.Location
	ForceSynthetic   bool
	SyntheticPoints  int
	SyntheticSeed    int64
}

// OptionsFromConfig copies the run parameters out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BBox:             cfg.BBox,
		MaxMatchDistance: cfg.MaxMatchDistance,
		Thresholds:       cfg.Thresholds,
		Interval:         cfg.RefreshInterval,
		FeedTimeout:      cfg.FeedTimeout,
		Location:         cfg.Location,
		ForceSynthetic:   cfg.ForceSynthetic,
		SyntheticPoints:  cfg.SyntheticPoints,
		SyntheticSeed:    cfg.SyntheticSeed,
	}
}

// Pipeline runs the fetch, analyse and publish cycle on a fixed interval.
type Pipeline struct {
	source  ObservationSource // nil when the live feed is disabled
	network NetworkProvider
	sinks   []Sink
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	latest  atomic.Pointer[domain.Result]
}

// New creates a Pipeline. source may be nil to run on synthetic data only.
func New(source ObservationSource, net NetworkProvider, sinks []Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		source:  source,
		network: net,
		sinks:   sinks,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once the pipeline has completed a run,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Latest returns the most recent result, if any run has completed.
func (p *Pipeline) Latest() (domain.Result, bool) {
	r := p.latest.Load()
	if r == nil {
		return domain.Result{}, false
	}
	return *r, true
}

// Run executes a cycle immediately and then on every interval until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.opts.Interval, "bbox", p.opts.BBox.String())
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		p.cycle(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

// cycle runs one analysis and publishes it to every sink.
func (p *Pipeline) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	result, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.Error("pipeline run failed", "error", err)
		return
	}

	for _, sink := range p.sinks {
		p.publish(ctx, sink, result)
	}
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
}

// RunOnce chooses the observation source, analyses it against the current
// network snapshot, and records the result as the latest. It does not publish.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.Result, error) {
	now := domain.Now().In(p.opts.Location)
	timeCode := domain.TimeCodeFor(now)
	snap := p.network.Current()
	segments := snap.Within(p.opts.BBox)
	if len(segments) == 0 {
		p.logger.Warn("no road segments inside bbox", "bbox", p.opts.BBox.String(), "network_segments", snap.Len())
	}

	observations, kind, reason := p.observe(ctx, timeCode, now)

	analysis, err := Analyze(observations, segments, AnalysisOptions{
		MaxMatchDistance: p.opts.MaxMatchDistance,
		Thresholds:       p.opts.Thresholds,
		Logger:           p.logger,
	})
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		RunID:       uuid.New(),
		SourceKind:  kind,
		Reason:      reason,
		TimeCode:    timeCode,
		NetworkID:   snap.ID(),
		Segments:    analysis.Segments,
		Statistics:  analysis.Statistics,
		Coverage:    analysis.Coverage,
		Discarded:   analysis.Discarded,
		GeneratedAt: analysis.Statistics.GeneratedAt,
	}

	p.record(result, len(observations), analysis.Unmatched)
	p.latest.Store(&result)
	p.ready.Store(true)

	p.logger.Info("pipeline run complete",
		"run_id", result.RunID,
		"source_kind", result.SourceKind,
		"reason", result.Reason,
		"time_code", result.TimeCode,
		"observations", len(observations),
		"segments", len(result.Segments),
		"discarded", result.Discarded,
		"unmatched", analysis.Unmatched,
	)
	return result, nil
}

// observe returns live observations when the feed is usable, otherwise a
// synthetic set and the reason live data was not used.
func (p *Pipeline) observe(ctx context.Context, timeCode int64, now time.Time) ([]domain.Observation, domain.SourceKind, string) {
	var code, reason string
	switch {
	case p.opts.ForceSynthetic:
		code, reason = ReasonForced, "synthetic data forced by configuration"
	case p.source == nil:
		code, reason = ReasonDisabled, "live feed disabled"
	default:
		fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FeedTimeout)
		obs, err := p.source.FetchObservations(fetchCtx, p.opts.BBox, timeCode)
		cancel()
		switch {
		case err != nil:
			p.logger.Warn("live feed failed, using synthetic data", "error", err, "time_code", timeCode)
			code, reason = ReasonError, fmt.Sprintf("live feed failed: %v", err)
		case len(obs) == 0:
			p.logger.Warn("live feed returned no observations, using synthetic data", "time_code", timeCode)
			code, reason = ReasonEmpty, "live feed returned no observations"
		default:
			return obs, domain.SourceLive, ""
		}
	}

	p.metrics.FallbacksTotal.WithLabelValues(code).Inc()
	obs := synthetic.GenerateAt(p.opts.BBox, p.opts.SyntheticPoints, p.opts.SyntheticSeed, now, p.opts.Location)
	return obs, domain.SourceSynthetic, reason
}

func (p *Pipeline) record(r domain.Result, ingested, unmatched int) {
	p.metrics.RunsTotal.WithLabelValues(string(r.SourceKind)).Inc()
	p.metrics.ObservationsIngested.Add(float64(ingested))
	p.metrics.ObservationsDiscarded.Add(float64(r.Discarded))
	p.metrics.ObservationsUnmatched.Add(float64(unmatched))
	for _, seg := range r.Segments {
		p.metrics.SegmentsClassified.WithLabelValues(string(seg.Level)).Inc()
	}
}

// publish delivers r to sink, retrying with exponential backoff.
// A sink that keeps failing is logged and skipped; it never blocks the next run.
func (p *Pipeline) publish(ctx context.Context, sink Sink, r domain.Result) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := sink.Publish(ctx, r)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.metrics.PublishErrors.WithLabelValues(sink.Name()).Inc()
		if attempt >= maxPublishAttempts {
			p.logger.Error("publish failed, giving up", "sink", sink.Name(), "run_id", r.RunID, "attempts", attempt, "error", err)
			return
		}
		p.logger.Warn("publish failed, retrying", "sink", sink.Name(), "run_id", r.RunID, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}
