// Package postgres loads the road network from a PostgreSQL table. Geometry
// is stored as a Google encoded polyline, as produced by GTFS and routing
// tools, which keeps rows compact without requiring PostGIS.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	polyline "github.com/twpayne/go-polyline"
)

const selectRoads = `SELECT segment_id, road_class, road_name, geometry
	FROM road_segments
	ORDER BY segment_id`

// NewPool opens a connection pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	// The loader issues one query per refresh.
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// RoadLoader reads road segments from the road_segments table.
// It implements network.Loader.
type RoadLoader struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRoadLoader creates a loader over pool.
func NewRoadLoader(pool *pgxpool.Pool, logger *slog.Logger) *RoadLoader {
	return &RoadLoader{pool: pool, logger: logger}
}

// roadRow is one road_segments row before geometry decoding.
type roadRow struct {
	ID       string
	Class    *string
	Name     *string
	Polyline string
}

// LoadSegments queries every road segment. Rows whose geometry cannot be
// decoded are skipped with a warning rather than failing the whole load.
func (l *RoadLoader) LoadSegments(ctx context.Context) ([]domain.RoadSegment, error) {
	rows, err := l.pool.Query(ctx, selectRoads)
	if err != nil {
		return nil, fmt.Errorf("query road segments: %w", err)
	}
	defer rows.Close()

	var raw []roadRow
	for rows.Next() {
		var r roadRow
		if err := rows.Scan(&r.ID, &r.Class, &r.Name, &r.Polyline); err != nil {
			return nil, fmt.Errorf("scan road segment: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate road segments: %w", err)
	}

	segments, skipped := buildSegments(raw)
	for _, s := range skipped {
		l.logger.Warn("skipping road segment with invalid geometry", "segment_id", s.id, "error", s.err)
	}
	return segments, nil
}

type skippedRow struct {
	id  string
	err error
}

func buildSegments(rows []roadRow) ([]domain.RoadSegment, []skippedRow) {
	segments := make([]domain.RoadSegment, 0, len(rows))
	var skipped []skippedRow
	for _, r := range rows {
		ls, err := decodeGeometry(r.Polyline)
		if err != nil {
			skipped = append(skipped, skippedRow{id: r.ID, err: err})
			continue
		}
		segments = append(segments, domain.RoadSegment{
			ID:       r.ID,
			Class:    nonEmpty(r.Class),
			Name:     nonEmpty(r.Name),
			Geometry: ls,
		})
	}
	return segments, skipped
}

// decodeGeometry decodes an encoded polyline into a lon/lat line string.
func decodeGeometry(encoded string) (orb.LineString, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline has %d vertices, need at least 2", len(coords))
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		// Polylines encode latitude first.
		ls[i] = orb.Point{c[1], c[0]}
	}
	return ls, nil
}

// EncodeGeometry is the inverse of decodeGeometry, used when seeding the table.
func EncodeGeometry(ls orb.LineString) string {
	coords := make([][]float64, len(ls))
	for i, p := range ls {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.String(*s)
}
