// Package synthetic generates plausible fallback traffic observations for
// cycles where the live feed is disabled, unreachable, or empty.
//
// Speeds follow a baseline that drops toward the centre of the bounding box
// (a proxy for a congested urban core), scaled by a time-of-day factor,
// perturbed with Gaussian noise and clamped to 5–80 km/h. Travel times are
// derived from a random link length and the generated speed so the fields
// stay consistent with each other.
package synthetic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	peripherySpeed = 50.0 // km/h at the box edge
	coreSlowdown   = 30.0 // km/h lost between edge and centre
	noiseStdDev    = 5.0
	minSpeed       = 5.0
	maxSpeed       = 80.0
	minLinkLength  = 50.0  // metres
	maxLinkLength  = 200.0 // metres

	rushHourFactor = 0.6
	nightFactor    = 1.3
)

// Generate produces count observations inside bbox for the current hour of
// the package clock, interpreted in the process's local time zone.
func Generate(bbox domain.BBox, count int, seed int64) []domain.Observation {
	return GenerateAt(bbox, count, seed, domain.Now(), time.Local)
}

// GenerateAt produces count observations inside bbox. Output is fully
// determined by bbox, count, seed and the wall-clock hour of at in loc, so
// repeated calls within the same local hour return identical observations,
// ids and time codes included.
func GenerateAt(bbox domain.BBox, count int, seed int64, at time.Time, loc *time.Location) []domain.Observation {
	if count <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	// Truncate would align to UTC hours and split half-hour zones.
	hourBucket := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	timeCode := domain.TimeCodeFor(hourBucket)
	factor := TimeOfDayFactor(local.Hour())

	r := rand.New(rand.NewPCG(uint64(seed), uint64(hourBucket.Unix())))

	points := make([]orb.Point, count)
	distances := make([]float64, count)
	center := bbox.Center()
	var maxDist float64
	for i := range points {
		points[i] = orb.Point{
			bbox.MinLon + r.Float64()*(bbox.MaxLon-bbox.MinLon),
			bbox.MinLat + r.Float64()*(bbox.MaxLat-bbox.MinLat),
		}
		distances[i] = geo.Distance(points[i], center)
		maxDist = math.Max(maxDist, distances[i])
	}

	out := make([]domain.Observation, count)
	for i, p := range points {
		ratio := 0.0
		if maxDist > 0 {
			ratio = distances[i] / maxDist
		}
		speed := (peripherySpeed-ratio*coreSlowdown)*factor + r.NormFloat64()*noiseStdDev
		speed = clamp(speed, minSpeed, maxSpeed)

		length := minLinkLength + r.Float64()*(maxLinkLength-minLinkLength)
		travelTime := (length / 1000) / (speed / 3600)

		out[i] = domain.Observation{
			ID:            fmt.Sprintf("syn-%d-%04d", timeCode, i),
			Location:      p,
			Speed:         domain.Float64(speed),
			TravelTime:    domain.Float64(travelTime),
			LinkLength:    domain.Float64(length),
			TimestampCode: timeCode,
		}
	}
	return out
}

// TimeOfDayFactor scales baseline speed by local hour: slower in the morning
// and evening rush (7–9, 17–19), faster at night (22–5).
func TimeOfDayFactor(hour int) float64 {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return rushHourFactor
	case hour >= 22 || hour <= 5:
		return nightFactor
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
