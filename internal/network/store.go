package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/observability"
)

// Store publishes the current road-network snapshot.
type Store struct {
	loader  Loader
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a Store holding an empty snapshot until the first Refresh.
func NewStore(loader Loader, logger *slog.Logger, metrics *observability.Metrics) *Store {
	s := &Store{loader: loader, logger: logger, metrics: metrics}
	s.current.Store(Empty())
	return s
}

// Current returns the published snapshot. It never returns nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Refresh loads a new snapshot and publishes it. On failure the previous
// snapshot stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	start := time.Now()
	segments, err := s.loader.LoadSegments(ctx)
	if err != nil {
		s.metrics.NetworkRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("load road network: %w", err)
	}

	snap, err := NewSnapshot(segments, domain.Now())
	if err != nil {
		s.metrics.NetworkRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("build road network snapshot: %w", err)
	}

	prev := s.current.Swap(snap)
	s.metrics.NetworkRefreshes.WithLabelValues("success").Inc()
	s.metrics.NetworkSegments.Set(float64(snap.Len()))
	s.logger.Info("road network refreshed",
		"network_id", snap.ID(),
		"segments", snap.Len(),
		"previous_segments", prev.Len(),
		"duration", time.Since(start),
	)
	return nil
}

// Run refreshes the snapshot every interval until ctx is cancelled. A
// non-positive interval disables periodic refresh.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("road network refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}
