package spatial

import (
	"errors"
	"math"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// ErrNegativeDistance is returned when the match cutoff is below zero.
var ErrNegativeDistance = errors.New("max match distance must not be negative")

// MatchReport is the outcome of matching one observation set.
type MatchReport struct {
	// Matched holds one record per valid observation, in input order.
	Matched []domain.MatchedObservation
	// Discarded counts observations dropped for an invalid location.
	Discarded int
	// Unmatched counts valid observations with no segment inside the cutoff.
	Unmatched int
}

// Match joins each observation to its nearest segment within maxDistance
// metres, building a disposable index over segments.
func Match(observations []domain.Observation, segments []domain.RoadSegment, maxDistance float64) (MatchReport, error) {
	if maxDistance < 0 {
		return MatchReport{}, ErrNegativeDistance
	}
	if len(observations) == 0 || len(segments) == 0 {
		return MatchReport{}, nil
	}
	return MatchIndex(NewIndex(segments), observations, maxDistance)
}

// MatchIndex joins observations against a prebuilt index.
func MatchIndex(idx *Index, observations []domain.Observation, maxDistance float64) (MatchReport, error) {
	if maxDistance < 0 {
		return MatchReport{}, ErrNegativeDistance
	}
	report := MatchReport{Matched: make([]domain.MatchedObservation, 0, len(observations))}

	for i := range observations {
		obs := observations[i]
		if !ValidLocation(obs.Location) {
			report.Discarded++
			continue
		}

		m := domain.MatchedObservation{Observation: obs}
		if hit, ok := idx.Nearest(obs.Location, maxDistance); ok {
			id := hit.Segment.ID
			dist := hit.Distance
			m.SegmentID = &id
			m.Distance = &dist
			m.SegmentClass = hit.Segment.Class
			m.SegmentName = hit.Segment.Name
		} else {
			report.Unmatched++
		}
		report.Matched = append(report.Matched, m)
	}
	return report, nil
}

// MaxLatitude is the Web Mercator latitude limit in degrees.
const MaxLatitude = 85.05112878

// ValidLocation reports whether p is a finite WGS-84 longitude/latitude
// inside the Web Mercator domain.
func ValidLocation(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	if math.Abs(lat) > MaxLatitude {
		return false
	}
	return s2.LatLngFromDegrees(lat, lon).IsValid()
}
