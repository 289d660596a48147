package geojson

import (
	"fmt"
	"math"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feed attribute names.
const (
	PropSpeed      = "平均速度"  // mean speed, km/h
	PropTravelTime = "旅行時間"  // travel time, seconds
	PropLinkLength = "リンク長"  // link length, metres
	PropTimeCode   = "時間コード" // YYYYMMDDhhmm
	PropRoadType   = "道路種別"  // road type code
)

// ParseObservations decodes a feed FeatureCollection into observations.
// Point features are used as-is; any other geometry is reduced to the centre
// of its bounds. Features without geometry get a NaN location so matching
// counts them as discarded. Out-of-range numeric
// values become nil rather than dropping the observation.
func ParseObservations(data []byte) ([]domain.Observation, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}

	out := make([]domain.Observation, 0, len(fc.Features))
	for i, f := range fc.Features {
		var loc orb.Point
		switch g := f.Geometry.(type) {
		case nil:
			loc = orb.Point{math.NaN(), math.NaN()}
		case orb.Point:
			loc = g
		default:
			loc = g.Bound().Center()
		}

		obs := domain.Observation{
			ID:         featureID(f, i),
			Location:   loc,
			Speed:      domain.SanitizeSpeed(propertyFloat(f.Properties, PropSpeed)),
			TravelTime: domain.SanitizeNonNegative(propertyFloat(f.Properties, PropTravelTime)),
			LinkLength: domain.SanitizeNonNegative(propertyFloat(f.Properties, PropLinkLength)),
		}
		if tc := propertyFloat(f.Properties, PropTimeCode); tc != nil && !math.IsNaN(*tc) {
			obs.TimestampCode = int64(*tc)
		}
		out = append(out, obs)
	}
	return out, nil
}

// EncodeObservations writes observations as a feed-shaped FeatureCollection
// that ParseObservations reads back.
func EncodeObservations(observations []domain.Observation) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, obs := range observations {
		f := geojson.NewFeature(obs.Location)
		f.ID = obs.ID
		f.Properties[PropTimeCode] = obs.TimestampCode
		setFloat(f.Properties, PropSpeed, obs.Speed)
		setFloat(f.Properties, PropTravelTime, obs.TravelTime)
		setFloat(f.Properties, PropLinkLength, obs.LinkLength)
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode observations: %w", err)
	}
	return data, nil
}

func featureID(f *geojson.Feature, index int) string {
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("obs-%06d", index)
}

func setFloat(props geojson.Properties, key string, v *float64) {
	if v != nil {
		props[key] = *v
	}
}
