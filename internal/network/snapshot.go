// Package network owns the road-segment set shared by all pipeline runs.
//
// A Snapshot is immutable once built. A Store publishes the current snapshot
// through an atomic pointer; a refresh builds and validates a complete new
// snapshot before swapping it in, so runs that already hold the previous
// snapshot keep a consistent view until they finish.
package network

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/google/uuid"
)

// Loader reads the full road-segment set from its source.
type Loader interface {
	LoadSegments(ctx context.Context) ([]domain.RoadSegment, error)
}

// Snapshot is one immutable generation of the road network.
type Snapshot struct {
	id       uuid.UUID
	loadedAt time.Time
	segments []domain.RoadSegment
	byID     map[string]int
}

// NewSnapshot validates segments and builds a snapshot over a private copy.
// Duplicate ids and invalid geometries are rejected.
func NewSnapshot(segments []domain.RoadSegment, loadedAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		id:       uuid.New(),
		loadedAt: loadedAt,
		segments: make([]domain.RoadSegment, len(segments)),
		byID:     make(map[string]int, len(segments)),
	}
	for i, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("validate road segment %d: %w", i, err)
		}
		if _, dup := s.byID[seg.ID]; dup {
			return nil, fmt.Errorf("duplicate road segment id %q", seg.ID)
		}
		seg.Geometry = slices.Clone(seg.Geometry)
		s.segments[i] = seg
		s.byID[seg.ID] = i
	}
	return s, nil
}

// Empty returns a snapshot with no segments.
func Empty() *Snapshot {
	s, _ := NewSnapshot(nil, time.Time{})
	return s
}

// ID identifies this generation.
func (s *Snapshot) ID() uuid.UUID { return s.id }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of segments.
func (s *Snapshot) Len() int { return len(s.segments) }

// Segments returns a copy of all segments in load order.
func (s *Snapshot) Segments() []domain.RoadSegment {
	return slices.Clone(s.segments)
}

// Segment looks up a segment by id.
func (s *Snapshot) Segment(id string) (domain.RoadSegment, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.RoadSegment{}, false
	}
	return s.segments[i], true
}

// Within returns the segments whose bounds intersect bbox, in load order.
// The snapshot itself is not modified.
func (s *Snapshot) Within(bbox domain.BBox) []domain.RoadSegment {
	b := bbox.Bound()
	var out []domain.RoadSegment
	for _, seg := range s.segments {
		if seg.Geometry.Bound().Intersects(b) {
			out = append(out, seg)
		}
	}
	return out
}
