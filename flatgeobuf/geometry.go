package flatgeobuf

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/geoerr"
)

func geometryType(g orb.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	}
	return flattypes.GeometryTypeUnknown
}

// commonType is the geometry type shared by every row, or Unknown when the
// rows are mixed.
func commonType(gs []orb.Geometry) flattypes.GeometryType {
	if len(gs) == 0 {
		return flattypes.GeometryTypeUnknown
	}
	t := geometryType(gs[0])
	for _, g := range gs[1:] {
		if geometryType(g) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

func encodeGeometry(g orb.Geometry, b *flatbuffers.Builder) (*writer.Geometry, error) {
	out := writer.NewGeometry(b)
	out.SetType(geometryType(g))

	switch g := g.(type) {
	case orb.Point:
		out.SetXY([]float64{g[0], g[1]})
	case orb.MultiPoint:
		out.SetXY(appendXY(nil, g))
	case orb.LineString:
		out.SetXY(appendXY(nil, g))
	case orb.MultiLineString:
		parts := make([][]orb.Point, len(g))
		for i, ls := range g {
			parts[i] = ls
		}
		xy, ends := flatten(parts)
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.Polygon:
		xy, ends := polygonXY(g)
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.MultiPolygon:
		parts := make([]writer.Geometry, 0, len(g))
		for _, p := range g {
			part := writer.NewGeometry(b)
			part.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonXY(p)
			part.SetXY(xy)
			part.SetEnds(ends)
			parts = append(parts, *part)
		}
		out.SetParts(parts)
	default:
		return nil, fmt.Errorf("flatgeobuf: cannot encode %T", g)
	}
	return out, nil
}

func appendXY(xy []float64, pts []orb.Point) []float64 {
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flatten concatenates parts into one coordinate array with cumulative
// end offsets, counted in points.
func flatten(parts [][]orb.Point) ([]float64, []uint32) {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	xy := make([]float64, 0, 2*n)
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		xy = appendXY(xy, p)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

func polygonXY(p orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(p))
	for i, r := range p {
		parts[i] = r
	}
	return flatten(parts)
}

// decodeGeometry converts a stored geometry. fallback is the header
// geometry type, used when the feature geometry does not carry its own.
func decodeGeometry(g *flattypes.Geometry, fallback flattypes.GeometryType) (orb.Geometry, error) {
	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = fallback
	}

	switch t {
	case flattypes.GeometryTypePoint:
		pts := points(g, 0, g.XyLength()/2)
		if len(pts) != 1 {
			return nil, fmt.Errorf("flatgeobuf: point with %d coordinates: %w", len(pts), geoerr.ErrDecode)
		}
		return pts[0], nil
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(points(g, 0, g.XyLength()/2)), nil
	case flattypes.GeometryTypeLineString:
		return orb.LineString(points(g, 0, g.XyLength()/2)), nil
	case flattypes.GeometryTypeMultiLineString:
		parts, err := split(g)
		if err != nil {
			return nil, err
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = p
		}
		return mls, nil
	case flattypes.GeometryTypePolygon:
		return decodePolygon(g)
	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			p, err := decodePolygon(g)
			if err != nil {
				return nil, err
			}
			return orb.MultiPolygon{p}, nil
		}
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				return nil, fmt.Errorf("flatgeobuf: missing polygon part %d: %w", i, geoerr.ErrDecode)
			}
			p, err := decodePolygon(&part)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("flatgeobuf: geometry type %s: %w",
		flattypes.EnumNamesGeometryType[t], geoerr.ErrDecode)
}

func decodePolygon(g *flattypes.Geometry) (orb.Polygon, error) {
	parts, err := split(g)
	if err != nil {
		return nil, err
	}
	p := make(orb.Polygon, len(parts))
	for i, r := range parts {
		p[i] = r
	}
	return p, nil
}

func points(g *flattypes.Geometry, from, to int) []orb.Point {
	pts := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// split cuts the coordinate array at the end offsets. A geometry without
// ends is a single part.
func split(g *flattypes.Geometry) ([][]orb.Point, error) {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil, nil
		}
		return [][]orb.Point{points(g, 0, n)}, nil
	}

	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		if end < start || end > n {
			return nil, fmt.Errorf("flatgeobuf: ring end %d out of range: %w", end, geoerr.ErrDecode)
		}
		parts = append(parts, points(g, start, end))
		start = end
	}
	return parts, nil
}
