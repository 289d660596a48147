// Package spatial matches point observations to the nearest road segment.
//
// Geometries are projected to Web Mercator (EPSG:3857) and indexed in an
// R-tree of segment envelopes. Mercator inflates lengths by 1/cos(lat), so
// every planar distance is scaled by cos of the mean latitude of the query
// point and its closest point on the segment to report approximate ground
// metres. Search boxes are widened by the inverse at the most poleward
// latitude a match could reach. Points beyond MaxLatitude are outside the
// projection's domain and are never matched.
//
// Equidistant candidates (within 1e-9 m) resolve to the lowest segment id
// in byte order, which keeps matching reproducible across runs.
package spatial

import (
	"math"

	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

const (
	// BruteForceThreshold is the segment count below which the index skips the
	// R-tree and scans every segment.
	BruteForceThreshold = 16

	tieTolerance = 1e-9

	// minExtent pads degenerate envelopes (horizontal or vertical lines), which
	// rtreego rejects, and widens query boxes to absorb projection rounding.
	minExtent = 1.0

	// metresPerDegree is one degree of latitude on the Web Mercator sphere.
	metresPerDegree = 6378137 * math.Pi / 180
)

// Hit is the nearest segment to a query point.
type Hit struct {
	Segment  *domain.RoadSegment
	Distance float64 // metres
}

// Index answers nearest-segment queries over a fixed segment set. It is
// read-only after construction and safe for concurrent queries.
type Index struct {
	entries []*entry
	tree    *rtreego.Rtree
}

type entry struct {
	segment   *domain.RoadSegment
	projected orb.LineString
	bounds    rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.bounds }

// NewIndex builds an index over segments. Segments with fewer than two
// vertices are skipped. The input slice is not retained.
func NewIndex(segments []domain.RoadSegment) *Index {
	idx := &Index{entries: make([]*entry, 0, len(segments))}

	for i := range segments {
		seg := segments[i]
		if len(seg.Geometry) < 2 {
			continue
		}
		projected := make(orb.LineString, len(seg.Geometry))
		for j, p := range seg.Geometry {
			projected[j] = project.Point(p, project.WGS84.ToMercator)
		}
		b := projected.Bound()
		rect, err := rtreego.NewRect(
			rtreego.Point{b.Min[0], b.Min[1]},
			[]float64{math.Max(b.Max[0]-b.Min[0], minExtent), math.Max(b.Max[1]-b.Min[1], minExtent)},
		)
		if err != nil {
			continue
		}
		idx.entries = append(idx.entries, &entry{segment: &seg, projected: projected, bounds: rect})
	}

	if len(idx.entries) >= BruteForceThreshold {
		objs := make([]rtreego.Spatial, len(idx.entries))
		for i, e := range idx.entries {
			objs[i] = e
		}
		idx.tree = rtreego.NewTree(2, 25, 50, objs...)
	}
	return idx
}

// Len returns the number of indexed segments.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Nearest returns the closest segment to p within maxDistance metres.
func (idx *Index) Nearest(p orb.Point, maxDistance float64) (Hit, bool) {
	if len(idx.entries) == 0 || maxDistance < 0 {
		return Hit{}, false
	}

	if math.Abs(p.Lat()) > MaxLatitude {
		return Hit{}, false
	}
	q := project.Point(p, project.WGS84.ToMercator)

	var best *entry
	bestDist := math.Inf(1)
	consider := func(e *entry) {
		d := groundDistance(e.projected, q, p.Lat())
		if d > maxDistance {
			return
		}
		if best == nil || d < bestDist-tieTolerance ||
			(math.Abs(d-bestDist) <= tieTolerance && e.segment.ID < best.segment.ID) {
			best, bestDist = e, d
		}
	}

	if idx.tree == nil {
		for _, e := range idx.entries {
			consider(e)
		}
	} else {
		reach := math.Min(math.Abs(p.Lat())+maxDistance/metresPerDegree, MaxLatitude)
		box := rtreego.Point{q[0], q[1]}.ToRect(maxDistance/degCos(reach) + minExtent)
		for _, s := range idx.tree.SearchIntersect(box) {
			consider(s.(*entry))
		}
	}

	if best == nil {
		return Hit{}, false
	}
	return Hit{Segment: best.segment, Distance: bestDist}, true
}

// groundDistance converts the planar distance from q to the closest edge of
// ls into metres, using the mean latitude of the query and the closest point.
func groundDistance(ls orb.LineString, q orb.Point, lat float64) float64 {
	closest, d := closestPoint(ls, q)
	if math.IsInf(d, 1) {
		return d
	}
	closestLat := project.Point(closest, project.Mercator.ToWGS84).Lat()
	return d * degCos((lat+closestLat)/2)
}

// closestPoint returns the point of ls nearest to q and its planar distance.
func closestPoint(ls orb.LineString, q orb.Point) (orb.Point, float64) {
	var best orb.Point
	bestDist := math.Inf(1)
	for i := 0; i+1 < len(ls); i++ {
		c := projectOnto(ls[i], ls[i+1], q)
		if d := planar.Distance(c, q); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// projectOnto clamps the projection of q onto the segment a-b.
func projectOnto(a, b, q orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((q[0]-a[0])*dx + (q[1]-a[1])*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

func degCos(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}
