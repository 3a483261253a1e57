package vector

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// parts is a geometry decomposed into its primitive pieces.
type parts struct {
	points   []orb.Point
	lines    []orb.LineString
	polygons []orb.Polygon
}

func decompose(g orb.Geometry) parts {
	var p parts
	switch g := g.(type) {
	case orb.Point:
		p.points = []orb.Point{g}
	case orb.MultiPoint:
		p.points = g
	case orb.LineString:
		p.lines = []orb.LineString{g}
	case orb.MultiLineString:
		p.lines = g
	case orb.Polygon:
		p.polygons = []orb.Polygon{g}
	case orb.MultiPolygon:
		p.polygons = g
	}
	return p
}

// Intersects reports whether a and b share at least one point. Touching
// boundaries count as intersecting.
func Intersects(a, b orb.Geometry) bool {
	if IsEmpty(a) || IsEmpty(b) {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	pa, pb := decompose(a), decompose(b)

	for _, p := range pa.points {
		if pointIntersects(p, pb) {
			return true
		}
	}
	for _, p := range pb.points {
		if pointIntersects(p, pa) {
			return true
		}
	}

	for _, la := range pa.lines {
		for _, lb := range pb.lines {
			if lineLineIntersects(la, lb) {
				return true
			}
		}
		for _, poly := range pb.polygons {
			if linePolygonIntersects(la, poly) {
				return true
			}
		}
	}
	for _, lb := range pb.lines {
		for _, poly := range pa.polygons {
			if linePolygonIntersects(lb, poly) {
				return true
			}
		}
	}

	for _, polyA := range pa.polygons {
		for _, polyB := range pb.polygons {
			if polygonPolygonIntersects(polyA, polyB) {
				return true
			}
		}
	}
	return false
}

func pointIntersects(p orb.Point, other parts) bool {
	for _, q := range other.points {
		if p == q {
			return true
		}
	}
	for _, ls := range other.lines {
		if pointOnLine(p, ls) {
			return true
		}
	}
	for _, poly := range other.polygons {
		if polygonCovers(poly, p) {
			return true
		}
	}
	return false
}

// polygonCovers is point-in-polygon including every ring boundary.
func polygonCovers(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return false
	}
	for _, r := range poly {
		if pointOnLine(p, orb.LineString(r)) {
			return true
		}
	}
	return planar.PolygonContains(poly, p)
}

func pointOnLine(p orb.Point, ls orb.LineString) bool {
	if len(ls) == 1 {
		return p == ls[0]
	}
	for i := 0; i+1 < len(ls); i++ {
		if onSegment(ls[i], ls[i+1], p) {
			return true
		}
	}
	return false
}

func lineLineIntersects(a, b orb.LineString) bool {
	if len(a) == 1 {
		return pointOnLine(a[0], b)
	}
	if len(b) == 1 {
		return pointOnLine(b[0], a)
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func linePolygonIntersects(ls orb.LineString, poly orb.Polygon) bool {
	if len(ls) == 0 || len(poly) == 0 {
		return false
	}
	if polygonCovers(poly, ls[0]) {
		return true
	}
	for _, r := range poly {
		if lineLineIntersects(ls, orb.LineString(r)) {
			return true
		}
	}
	return false
}

func polygonPolygonIntersects(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}
	for _, ra := range a {
		for _, rb := range b {
			if lineLineIntersects(orb.LineString(ra), orb.LineString(rb)) {
				return true
			}
		}
	}
	// no boundary crossings: one lies entirely inside the other
	return polygonCovers(a, b[0][0]) || polygonCovers(b, a[0][0])
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(a, b, p orb.Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return within(a, b, p)
}

// within reports whether p, known to be collinear with a-b, lies between
// them.
func within(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && within(q1, q2, p1)) ||
		(d2 == 0 && within(q1, q2, p2)) ||
		(d3 == 0 && within(p1, p2, q1)) ||
		(d4 == 0 && within(p1, p2, q2))
}
