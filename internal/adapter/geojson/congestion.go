package geojson

import (
	"fmt"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// CongestionLayer builds the map layer for a run: one LineString feature per
// classified segment carrying its style, plus run metadata as foreign members.
func CongestionLayer(r domain.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range r.Segments {
		f := geojson.NewFeature(seg.Geometry)
		f.ID = seg.SegmentID
		f.Properties["segment_id"] = seg.SegmentID
		f.Properties["congestion_level"] = string(seg.Level)
		f.Properties["congestion_color"] = seg.Color
		f.Properties["category_label"] = seg.Label
		f.Properties["line_width"] = seg.Width
		f.Properties["observation_count"] = seg.ObservationCount
		setFloat(f.Properties, "mean_speed", seg.MeanSpeed)
		setFloat(f.Properties, "mean_travel_time", seg.MeanTravelTime)
		setFloat(f.Properties, "mean_link_length", seg.MeanLinkLength)
		if seg.Name != nil {
			f.Properties["name"] = *seg.Name
		}
		if seg.Class != nil {
			f.Properties["class"] = *seg.Class
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"run_id":       r.RunID.String(),
		"source_kind":  string(r.SourceKind),
		"time_code":    r.TimeCode,
		"generated_at": r.GeneratedAt,
	}
	if r.Reason != "" {
		fc.ExtraMembers["reason"] = r.Reason
	}
	return fc
}

// EncodeCongestion marshals CongestionLayer(r).
func EncodeCongestion(r domain.Result) ([]byte, error) {
	data, err := CongestionLayer(r).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode congestion layer: %w", err)
	}
	return data, nil
}
