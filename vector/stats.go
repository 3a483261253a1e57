package vector

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tingold/geopipe/crs"
)

// Stats summarises a store. Bounds is only meaningful when FeatureCount is
// non-zero and at least one geometry is non-empty.
type Stats struct {
	FeatureCount int
	TotalArea    float64
	MeanArea     float64
	Bounds       orb.Bound
	CRS          crs.ID
}

// Statistics computes feature count, signed planar area totals and the
// union bounding box.
func Statistics(s *Store) Stats {
	st := Stats{FeatureCount: len(s.rows), CRS: s.crs}
	if len(s.rows) == 0 {
		return st
	}

	for _, r := range s.rows {
		st.TotalArea += SignedArea(r.Geometry)
	}
	st.MeanArea = st.TotalArea / float64(len(s.rows))
	st.Bounds, _ = s.Bounds()
	return st
}

// SignedArea is the planar area of g. A polygon takes the sign of its
// exterior ring orientation (positive when counter-clockwise) and the
// magnitude of its exterior minus its holes. Points and lines have zero
// area.
func SignedArea(g orb.Geometry) float64 {
	switch g := g.(type) {
	case orb.Polygon:
		return polygonSignedArea(g)
	case orb.MultiPolygon:
		var a float64
		for _, p := range g {
			a += polygonSignedArea(p)
		}
		return a
	}
	return 0
}

func polygonSignedArea(p orb.Polygon) float64 {
	if len(p) == 0 || len(p[0]) < 3 {
		return 0
	}
	ext := planar.Area(p[0])
	mag := math.Abs(ext)
	for _, h := range p[1:] {
		if len(h) >= 3 {
			mag -= math.Abs(planar.Area(h))
		}
	}
	if ext < 0 {
		return -mag
	}
	return mag
}
