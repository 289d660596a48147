// Command genmock writes reproducible fixtures for local runs and tests: a
// synthetic observation feed in the live feed's GeoJSON shape and, optionally,
// a grid road network covering the same bounding box. It uses the pipeline's
// own generator and codecs so the output parses exactly like real data.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -feed-out data/mock/feed.geojson \
//	  -roads-out data/mock/roads.geojson \
//	  -grid 8
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/couchcryptid/traffic-congestion-etl/internal/synthetic"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

// baseTime is 15:10 JST, inside the evening rush slowdown window.
var baseTime = time.Date(2024, time.April, 26, 6, 10, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	bboxFlag := flag.String("bbox", "139.7194,35.6606,139.8094,35.7506", "minLon,minLat,maxLon,maxLat")
	points := flag.Int("points", 200, "number of synthetic observations")
	seed := flag.Int64("seed", 42, "generator seed")
	tz := flag.String("tz", "Asia/Tokyo", "time zone for the hour-of-day profile")
	feedOut := flag.String("feed-out", "", "output path for the observation feed fixture")
	roadsOut := flag.String("roads-out", "", "output path for the grid road network (optional)")
	grid := flag.Int("grid", 8, "roads per axis in the generated grid")
	flag.Parse()

	if *feedOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -feed-out")
	}

	bbox, err := domain.ParseBBox(*bboxFlag)
	if err != nil {
		return fmt.Errorf("parse -bbox: %w", err)
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("load -tz: %w", err)
	}

	// Set a fixed clock for reproducible time codes and ids.
	domain.SetClock(clockwork.NewFakeClockAt(baseTime))
	defer domain.SetClock(nil)

	obs := synthetic.GenerateAt(bbox, *points, *seed, domain.Now(), loc)
	data, err := geojson.EncodeObservations(obs)
	if err != nil {
		return fmt.Errorf("encoding feed: %w", err)
	}
	if err := writeFile(*feedOut, data); err != nil {
		return fmt.Errorf("writing feed fixture: %w", err)
	}
	log.Printf("wrote feed fixture: %s (%d observations, time code %d)", *feedOut, len(obs), domain.TimeCodeFor(domain.Now().In(loc)))

	if *roadsOut != "" {
		segments := gridNetwork(bbox, *grid)
		data, err := geojson.EncodeRoadNetwork(segments)
		if err != nil {
			return fmt.Errorf("encoding road network: %w", err)
		}
		if err := writeFile(*roadsOut, data); err != nil {
			return fmt.Errorf("writing road network: %w", err)
		}
		log.Printf("wrote road network: %s (%d segments)", *roadsOut, len(segments))
	}

	printStats(obs)
	return nil
}

// gridNetwork lays n east-west and n north-south roads evenly across bbox.
// Arterials (every fourth road) are class 1, the rest class 3.
func gridNetwork(bbox domain.BBox, n int) []domain.RoadSegment {
	if n < 1 {
		return nil
	}
	segments := make([]domain.RoadSegment, 0, 2*n)
	stepLat := (bbox.MaxLat - bbox.MinLat) / float64(n+1)
	stepLon := (bbox.MaxLon - bbox.MinLon) / float64(n+1)

	for i := 1; i <= n; i++ {
		lat := bbox.MinLat + float64(i)*stepLat
		segments = append(segments, domain.RoadSegment{
			ID:       fmt.Sprintf("ew-%03d", i),
			Class:    domain.String(gridClass(i)),
			Name:     domain.String(fmt.Sprintf("East-West %d", i)),
			Geometry: orb.LineString{{bbox.MinLon, lat}, {bbox.MaxLon, lat}},
		})
	}
	for i := 1; i <= n; i++ {
		lon := bbox.MinLon + float64(i)*stepLon
		segments = append(segments, domain.RoadSegment{
			ID:       fmt.Sprintf("ns-%03d", i),
			Class:    domain.String(gridClass(i)),
			Name:     domain.String(fmt.Sprintf("North-South %d", i)),
			Geometry: orb.LineString{{lon, bbox.MinLat}, {lon, bbox.MaxLat}},
		})
	}
	return segments
}

func gridClass(i int) string {
	if i%4 == 0 {
		return "1"
	}
	return "3"
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // fixture files are not sensitive
}

func printStats(obs []domain.Observation) {
	levels := map[domain.Level]int{}
	for _, o := range obs {
		levels[domain.LevelFor(o.Speed, domain.DefaultThresholds())]++
	}
	fmt.Println("\nObservation speed tiers (default thresholds):")
	for _, l := range domain.Levels {
		fmt.Printf("  %-8s %d\n", l, levels[l])
	}
}
