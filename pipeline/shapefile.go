package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geopipe/geoerr"
	"github.com/tingold/geopipe/vector"
)

// readShapefile converts every record of the shapefile at path into a row.
// Null shapes carry no geometry and are counted in skipped.
func readShapefile(path string) (rows []vector.Row, skipped int, err error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("pipeline: open shapefile: %v: %w", err, geoerr.ErrDecode)
	}
	defer r.Close()

	fields := r.Fields()
	for r.Next() {
		n, shape := r.Shape()
		g, err := shapeGeometry(shape)
		if err != nil {
			return nil, 0, fmt.Errorf("pipeline: shapefile record %d: %w", n, err)
		}
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			attrs[f.String()] = dbfValue(f.Fieldtype, r.Attribute(i))
		}
		rows = append(rows, vector.Row{Geometry: g, Attributes: attrs})
	}
	if err := r.Err(); err != nil {
		return nil, 0, fmt.Errorf("pipeline: read shapefile: %v: %w", err, geoerr.ErrDecode)
	}
	return rows, skipped, nil
}

// shapeGeometry returns nil for null shapes. M and Z values are dropped.
func shapeGeometry(s shp.Shape) (orb.Geometry, error) {
	switch s := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return orb.MultiPoint(points(s.Points)), nil
	case *shp.MultiPointZ:
		return orb.MultiPoint(points(s.Points)), nil
	case *shp.MultiPointM:
		return orb.MultiPoint(points(s.Points)), nil
	case *shp.PolyLine:
		return lines(parts(s.Parts, s.Points)), nil
	case *shp.PolyLineZ:
		return lines(parts(s.Parts, s.Points)), nil
	case *shp.PolyLineM:
		return lines(parts(s.Parts, s.Points)), nil
	case *shp.Polygon:
		return polygons(parts(s.Parts, s.Points)), nil
	case *shp.PolygonZ:
		return polygons(parts(s.Parts, s.Points)), nil
	case *shp.PolygonM:
		return polygons(parts(s.Parts, s.Points)), nil
	}
	return nil, fmt.Errorf("shape %T: %w", s, vector.ErrUnsupportedGeometry)
}

func points(pts []shp.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// parts splits pts at the given start offsets.
func parts(starts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(starts))
	for i, from := range starts {
		to := int32(len(pts))
		if i+1 < len(starts) {
			to = starts[i+1]
		}
		if from < 0 || from > to || int(to) > len(pts) {
			continue
		}
		out = append(out, points(pts[from:to]))
	}
	return out
}

func lines(ps [][]orb.Point) orb.Geometry {
	if len(ps) == 1 {
		return orb.LineString(ps[0])
	}
	ml := make(orb.MultiLineString, len(ps))
	for i, p := range ps {
		ml[i] = p
	}
	return ml
}

// polygons groups shapefile rings into polygons. Shapefile exteriors are
// clockwise and holes counter-clockwise; a hole belongs to the latest
// exterior that contains it. Output rings follow RFC 7946 orientation.
func polygons(ps [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range ps {
		ring := orb.Ring(p)
		if len(mp) == 0 || ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}

		owner := len(mp) - 1
		for i := len(mp) - 1; i >= 0; i-- {
			if planar.RingContains(mp[i][0], ring[0]) {
				owner = i
				break
			}
		}
		mp[owner] = append(mp[owner], ring)
	}

	for _, poly := range mp {
		for i, ring := range poly {
			if (i == 0) != (ring.Orientation() == orb.CCW) {
				ring.Reverse()
			}
		}
	}

	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// dbfValue parses numeric and logical fields. Blank values are nil.
func dbfValue(fieldType byte, raw string) any {
	v := strings.TrimSpace(strings.Trim(raw, "\x00"))
	if v == "" {
		return nil
	}
	switch fieldType {
	case 'N', 'F', 'O', 'I':
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return nil
	case 'L':
		switch strings.ToUpper(v) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return v
}
