package domain

import (
	"log/slog"
	"slices"
)

// Aggregate folds matched observations into one row per segment.
//
// Unmatched observations are ignored. Groups appear in the order their
// segment id is first seen in matched. Numeric fields are averaged over
// non-nil values and stay nil when the whole group lacks them. Name and class
// take the first non-nil joined value, falling back to the master segment.
// A group whose id is missing from segments is dropped with a warning.
func Aggregate(matched []MatchedObservation, segments []RoadSegment, logger *slog.Logger) []AggregatedSegment {
	if len(matched) == 0 {
		return nil
	}

	byID := make(map[string]*RoadSegment, len(segments))
	for i := range segments {
		byID[segments[i].ID] = &segments[i]
	}

	type group struct {
		speed, travelTime, linkLength, distance mean
		count                                   int
		name, class                             *string
	}

	groups := make(map[string]*group)
	var order []string

	for i := range matched {
		m := &matched[i]
		if !m.Matched() {
			continue
		}
		id := *m.SegmentID
		g, ok := groups[id]
		if !ok {
			g = &group{}
			groups[id] = g
			order = append(order, id)
		}
		g.count++
		g.speed.add(m.Speed)
		g.travelTime.add(m.TravelTime)
		g.linkLength.add(m.LinkLength)
		g.distance.add(m.Distance)
		if g.name == nil && m.SegmentName != nil {
			g.name = m.SegmentName
		}
		if g.class == nil && m.SegmentClass != nil {
			g.class = m.SegmentClass
		}
	}

	out := make([]AggregatedSegment, 0, len(order))
	for _, id := range order {
		g := groups[id]
		seg, ok := byID[id]
		if !ok {
			if logger != nil {
				logger.Warn("matched segment missing from road network, dropping group",
					"segment_id", id, "observations", g.count)
			}
			continue
		}
		name, class := g.name, g.class
		if name == nil {
			name = seg.Name
		}
		if class == nil {
			class = seg.Class
		}
		out = append(out, AggregatedSegment{
			SegmentID:         id,
			MeanSpeed:         g.speed.value(),
			MeanTravelTime:    g.travelTime.value(),
			MeanLinkLength:    g.linkLength.value(),
			MeanMatchDistance: g.distance.value(),
			ObservationCount:  g.count,
			Geometry:          slices.Clone(seg.Geometry),
			Name:              name,
			Class:             class,
		})
	}
	return out
}

// mean accumulates an arithmetic mean over non-nil values.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	return Float64(m.sum / float64(m.n))
}
