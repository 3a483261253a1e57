package vector

import (
	"fmt"
	"math"
	"sort"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geopipe/geoerr"
)

// DefaultQuadrantSegments is the number of segments used to approximate a
// quarter circle.
const DefaultQuadrantSegments = 8

// BufferOptions tunes Buffer.
type BufferOptions struct {
	QuadrantSegments int
}

// Buffer dilates (distance > 0) or erodes (distance < 0) every geometry by
// distance in the store's own units. Points and lines become polygons;
// multi geometries become multipolygons. Eroded points and lines, and
// polygons that collapse entirely, become empty polygons. A polygon that
// erodes into separate pieces becomes a multipolygon.
func Buffer(s *Store, distance float64, opts BufferOptions) (*Store, error) {
	if !finite(distance) {
		return nil, fmt.Errorf("vector: buffer distance %v: %w", distance, geoerr.ErrInvalidDistance)
	}
	if distance == 0 {
		return newOwned(s.crs, cloneRows(s.rows)), nil
	}

	segs := opts.QuadrantSegments
	if segs <= 0 {
		segs = DefaultQuadrantSegments
	}
	b := buffering{d: distance, r: math.Abs(distance), quadSegs: segs}

	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = Row{Geometry: b.geometry(r.Geometry), Attributes: cloneAttributes(r.Attributes)}
	}
	return newOwned(s.crs, out), nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}

// buffering computes buffers as boolean combinations: the band of width r
// around a boundary is the union of one rectangle per edge and one disc per
// vertex. Dilation adds the band to the shape, erosion removes it.
type buffering struct {
	d        float64
	r        float64
	quadSegs int
}

func (b buffering) geometry(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		if b.d < 0 {
			return orb.Polygon{}
		}
		return orb.Polygon{b.disc(g)}
	case orb.MultiPoint:
		if b.d < 0 {
			return orb.MultiPolygon{}
		}
		parts := make([]polyclip.Polygon, 0, len(g))
		for _, p := range g {
			parts = append(parts, polyclip.Polygon{contour(b.disc(p))})
		}
		return orb.MultiPolygon(b.polygons(unionAll(parts)))
	case orb.LineString:
		if b.d < 0 {
			return orb.Polygon{}
		}
		return single(b.polygons(unionAll(b.pathBand(g, false))))
	case orb.MultiLineString:
		if b.d < 0 {
			return orb.MultiPolygon{}
		}
		var parts []polyclip.Polygon
		for _, ls := range g {
			parts = append(parts, b.pathBand(ls, false)...)
		}
		return orb.MultiPolygon(b.polygons(unionAll(parts)))
	case orb.Polygon:
		return single(b.area(orb.MultiPolygon{g}))
	case orb.MultiPolygon:
		return orb.MultiPolygon(b.area(g))
	}
	return orb.Polygon{}
}

// area dilates or erodes the region covered by mp.
func (b buffering) area(mp orb.MultiPolygon) []orb.Polygon {
	var shapes, band []polyclip.Polygon
	for _, p := range mp {
		if len(p) == 0 || len(p[0]) == 0 {
			continue
		}
		var shape polyclip.Polygon
		for _, r := range p {
			if c := contour(r); len(c) >= 3 {
				shape = append(shape, c)
			}
			band = append(band, b.pathBand(orb.LineString(r), true)...)
		}
		if len(shape) > 0 {
			shapes = append(shapes, shape)
		}
	}
	if len(shapes) == 0 {
		return []orb.Polygon{}
	}

	region := unionAll(shapes)
	edges := unionAll(band)
	if b.d > 0 {
		return b.polygons(region.Construct(polyclip.UNION, edges))
	}
	if len(edges) == 0 {
		return b.polygons(region)
	}
	return b.polygons(region.Construct(polyclip.DIFFERENCE, edges))
}

// pathBand returns the pieces covering every point within r of the path
// through pts; closed paths also get the edge from the last vertex back to
// the first.
func (b buffering) pathBand(pts orb.LineString, closed bool) []polyclip.Polygon {
	pts = dedupe(pts)
	if closed && len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) == 0 {
		return nil
	}

	out := make([]polyclip.Polygon, 0, 2*len(pts))
	for _, p := range pts {
		out = append(out, polyclip.Polygon{contour(b.disc(p))})
	}
	n := len(pts) - 1
	if closed && len(pts) > 2 {
		n = len(pts)
	}
	for i := 0; i < n; i++ {
		if rect := b.strip(pts[i], pts[(i+1)%len(pts)]); rect != nil {
			out = append(out, polyclip.Polygon{rect})
		}
	}
	return out
}

// strip is the rectangle of half width r centred on the segment p-q.
func (b buffering) strip(p, q orb.Point) polyclip.Contour {
	dx, dy := q[0]-p[0], q[1]-p[1]
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := b.r*dy/l, -b.r*dx/l
	return polyclip.Contour{
		{X: p[0] + nx, Y: p[1] + ny},
		{X: q[0] + nx, Y: q[1] + ny},
		{X: q[0] - nx, Y: q[1] - ny},
		{X: p[0] - nx, Y: p[1] - ny},
	}
}

// disc is the closed regular polygon of radius r around c, with a vertex on
// each axis.
func (b buffering) disc(c orb.Point) orb.Ring {
	n := 4 * b.quadSegs
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		cos, sin := unitAt(i, b.quadSegs)
		ring = append(ring, orb.Point{c[0] + b.r*cos, c[1] + b.r*sin})
	}
	return append(ring, ring[0])
}

// unitAt returns the i-th of 4*quadSegs directions around the circle,
// exact on the axes.
func unitAt(i, quadSegs int) (float64, float64) {
	if i%quadSegs == 0 {
		switch i / quadSegs {
		case 0:
			return 1, 0
		case 1:
			return 0, 1
		case 2:
			return -1, 0
		default:
			return 0, -1
		}
	}
	a := math.Pi / 2 * float64(i) / float64(quadSegs)
	return math.Cos(a), math.Sin(a)
}

func unionAll(parts []polyclip.Polygon) polyclip.Polygon {
	if len(parts) == 0 {
		return nil
	}
	for len(parts) > 1 {
		next := make([]polyclip.Polygon, 0, (len(parts)+1)/2)
		for i := 0; i < len(parts); i += 2 {
			if i+1 == len(parts) {
				next = append(next, parts[i])
				continue
			}
			next = append(next, parts[i].Construct(polyclip.UNION, parts[i+1]))
		}
		parts = next
	}
	return parts[0]
}

func contour(r orb.Ring) polyclip.Contour {
	pts := dedupe(orb.LineString(r))
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	c := make(polyclip.Contour, len(pts))
	for i, p := range pts {
		c[i] = polyclip.Point{X: p[0], Y: p[1]}
	}
	return c
}

// polygons groups the contours of p into polygons: a contour nested inside
// an odd number of others is a hole of the smallest exterior around it.
// Slivers far smaller than the buffer radius are dropped. Exteriors come out
// counter-clockwise and holes clockwise, ordered by their lower left corner.
func (b buffering) polygons(p polyclip.Polygon) []orb.Polygon {
	minArea := 1e-9 * b.r * b.r
	type ring struct {
		r      orb.Ring
		area   float64
		sample orb.Point
	}
	rings := make([]ring, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		r := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			r = append(r, orb.Point{pt.X, pt.Y})
		}
		r = append(r, r[0])
		a := math.Abs(planar.Area(r))
		if a <= minArea {
			continue
		}
		rings = append(rings, ring{r: r, area: a, sample: interiorPoint(r)})
	}

	inside := func(i, j int) bool {
		return i != j && rings[j].area > rings[i].area && planar.RingContains(rings[j].r, rings[i].sample)
	}

	out := []orb.Polygon{}
	owner := make(map[int]int)
	for i := range rings {
		depth := 0
		for j := range rings {
			if inside(i, j) {
				depth++
			}
		}
		if depth%2 == 0 {
			owner[i] = len(out)
			out = append(out, orb.Polygon{oriented(rings[i].r, orb.CCW)})
		}
	}
	for i := range rings {
		if _, ok := owner[i]; ok {
			continue
		}
		best := -1
		for j := range rings {
			if _, ok := owner[j]; ok && inside(i, j) && (best < 0 || rings[j].area < rings[best].area) {
				best = j
			}
		}
		if best >= 0 {
			k := owner[best]
			out[k] = append(out[k], oriented(rings[i].r, orb.CW))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Bound().Min, out[j].Bound().Min
		if pi[0] != pj[0] {
			return pi[0] < pj[0]
		}
		return pi[1] < pj[1]
	})
	return out
}

// interiorPoint returns a point just off the middle of the first edge of r,
// on the side the ring encloses.
func interiorPoint(r orb.Ring) orb.Point {
	a, c := r[0], r[1]
	dx, dy := c[0]-a[0], c[1]-a[1]
	l := math.Hypot(dx, dy)
	if l == 0 {
		return a
	}
	eps := 1e-7 * math.Max(l, 1)
	nx, ny := -dy/l, dx/l
	if r.Orientation() == orb.CW {
		nx, ny = -nx, -ny
	}
	return orb.Point{(a[0]+c[0])/2 + eps*nx, (a[1]+c[1])/2 + eps*ny}
}

func oriented(r orb.Ring, o orb.Orientation) orb.Ring {
	if r.Orientation() != o {
		r.Reverse()
	}
	return r
}

// single returns the only polygon of ps, an empty polygon for none, and a
// multipolygon when the buffer split the shape.
func single(ps []orb.Polygon) orb.Geometry {
	switch len(ps) {
	case 0:
		return orb.Polygon{}
	case 1:
		return ps[0]
	}
	return orb.MultiPolygon(ps)
}

func dedupe(pts orb.LineString) orb.LineString {
	out := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
