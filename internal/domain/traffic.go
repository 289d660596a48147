package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Observation is a single point-sampled traffic measurement. Numeric fields
// are nil when the source did not report a usable value.
type Observation struct {
	ID            string    `json:"id"`
	Location      orb.Point `json:"location"` // [lon, lat]
	Speed         *float64  `json:"speed,omitempty"`       // km/h
	TravelTime    *float64  `json:"travel_time,omitempty"` // seconds
	LinkLength    *float64  `json:"link_length,omitempty"` // metres
	TimestampCode int64     `json:"timestamp_code"`
}

// RoadSegment is one road centreline with a stable identifier.
type RoadSegment struct {
	ID       string         `json:"segment_id"`
	Class    *string        `json:"class,omitempty"`
	Name     *string        `json:"name,omitempty"`
	Geometry orb.LineString `json:"geometry"`
}

// Validate checks the segment invariants: a non-empty id and at least two vertices.
func (s RoadSegment) Validate() error {
	if s.ID == "" {
		return errors.New("segment id is required")
	}
	if len(s.Geometry) < 2 {
		return fmt.Errorf("segment %s: geometry needs at least 2 vertices, got %d", s.ID, len(s.Geometry))
	}
	return nil
}

// MatchedObservation is an Observation joined to its nearest segment.
// SegmentID and Distance are both nil when nothing lies within the cutoff.
type MatchedObservation struct {
	Observation
	SegmentID    *string  `json:"matched_segment_id"`
	Distance     *float64 `json:"distance_to_segment"` // metres
	SegmentClass *string  `json:"segment_class,omitempty"`
	SegmentName  *string  `json:"segment_name,omitempty"`
}

// Matched reports whether the observation was joined to a segment.
func (m MatchedObservation) Matched() bool {
	return m.SegmentID != nil
}

// AggregatedSegment is one row per segment that received at least one matched observation.
type AggregatedSegment struct {
	SegmentID         string         `json:"segment_id"`
	MeanSpeed         *float64       `json:"mean_speed"`
	MeanTravelTime    *float64       `json:"mean_travel_time"`
	MeanLinkLength    *float64       `json:"mean_link_length"`
	MeanMatchDistance *float64       `json:"mean_match_distance"`
	ObservationCount  int            `json:"observation_count"`
	Geometry          orb.LineString `json:"geometry"`
	Name              *string        `json:"name,omitempty"`
	Class             *string        `json:"class,omitempty"`
}

// ClassifiedSegment is an AggregatedSegment with its congestion tier and display style.
type ClassifiedSegment struct {
	AggregatedSegment
	Level Level  `json:"congestion_level"`
	Color string `json:"congestion_color"`
	Label string `json:"category_label"`
	Width int    `json:"line_width"`
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox needs 4 comma-separated values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("parse bbox value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate checks that the box is ordered and within WGS-84 ranges.
func (b BBox) Validate() error {
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return errors.New("bbox min must be less than max")
	}
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return errors.New("bbox outside WGS-84 range")
	}
	return nil
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// Center returns the midpoint of the box.
func (b BBox) Center() orb.Point {
	return orb.Point{(b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2}
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p orb.Point) bool {
	return b.Bound().Contains(p)
}

// String formats the box in the same order ParseBBox accepts.
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
