// Package geojson reads and writes the GeoJSON documents the service exchanges:
// road networks, feed observations, and classified congestion layers.
package geojson

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Road network attribute keys. National Land Numerical Information (KSJ N01)
// exports use coded column names; prepared files use the plain ones.
var (
	roadIDKeys    = []string{"road_id", "N01_002"}
	roadClassKeys = []string{"road_class", "N01_001"}
	roadNameKeys  = []string{"road_name", "N01_003"}
)

// FileLoader reads a road network from a GeoJSON file on disk.
// It implements network.Loader.
type FileLoader struct {
	Path string
}

// LoadSegments reads and parses the file.
func (l FileLoader) LoadSegments(_ context.Context) ([]domain.RoadSegment, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read road network %s: %w", l.Path, err)
	}
	return ParseRoadNetwork(data)
}

// ParseRoadNetwork decodes a FeatureCollection of LineString and
// MultiLineString features into road segments. Each MultiLineString part
// becomes its own segment. Features with other geometry types, or with fewer
// than two vertices, are skipped.
//
// Identifiers are left-padded with zeros to three characters. Features with
// no identifier get their feature index padded to six. Repeated identifiers
// receive a "-n" suffix so the result is always unique.
func ParseRoadNetwork(data []byte) ([]domain.RoadSegment, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode road network: %w", err)
	}

	ids := newIDSet()
	segments := make([]domain.RoadSegment, 0, len(fc.Features))
	for i, f := range fc.Features {
		var lines []orb.LineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			lines = []orb.LineString{g}
		case orb.MultiLineString:
			lines = g
		default:
			continue
		}

		baseID, ok := propertyString(f.Properties, roadIDKeys...)
		if ok {
			baseID = zfill(baseID, 3)
		} else {
			baseID = zfill(strconv.Itoa(i), 6)
		}
		class, _ := propertyString(f.Properties, roadClassKeys...)
		name, _ := propertyString(f.Properties, roadNameKeys...)

		for part, ls := range lines {
			if len(ls) < 2 {
				continue
			}
			id := baseID
			if len(lines) > 1 {
				id = fmt.Sprintf("%s-p%d", baseID, part)
			}
			segments = append(segments, domain.RoadSegment{
				ID:       ids.unique(id),
				Class:    domain.String(class),
				Name:     domain.String(name),
				Geometry: ls,
			})
		}
	}
	return segments, nil
}

// EncodeRoadNetwork writes segments as a FeatureCollection using the plain
// attribute names ParseRoadNetwork accepts.
func EncodeRoadNetwork(segments []domain.RoadSegment) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, seg := range segments {
		f := geojson.NewFeature(seg.Geometry)
		f.Properties["road_id"] = seg.ID
		if seg.Class != nil {
			f.Properties["road_class"] = *seg.Class
		}
		if seg.Name != nil {
			f.Properties["road_name"] = *seg.Name
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode road network: %w", err)
	}
	return data, nil
}

type idSet map[string]int

func newIDSet() idSet { return make(idSet) }

// unique returns id the first time it is seen and id-n on the nth repeat.
func (s idSet) unique(id string) string {
	n := s[id]
	s[id] = n + 1
	if n == 0 {
		return id
	}
	candidate := fmt.Sprintf("%s-%d", id, n+1)
	for s[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s-%d", id, n+1)
	}
	s[candidate] = 1
	return candidate
}

func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// propertyString returns the first non-empty value among keys, formatting
// numbers without a trailing fraction.
func propertyString(props geojson.Properties, keys ...string) (string, bool) {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return strconv.FormatFloat(v, 'f', -1, 64), true
			}
		case bool:
			return strconv.FormatBool(v), true
		}
	}
	return "", false
}

// propertyFloat returns the value at key as a number. Numeric strings are
// accepted since some feed exports quote every attribute.
func propertyFloat(props geojson.Properties, key string) *float64 {
	switch v := props[key].(type) {
	case float64:
		return domain.Float64(v)
	case int:
		return domain.Float64(float64(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return domain.Float64(f)
	}
	return nil
}
