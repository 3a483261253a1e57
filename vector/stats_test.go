package vector

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geopipe/crs"
)

func TestStatistics_Empty(t *testing.T) {
	st := Statistics(mustStore(t))
	require.Equal(t, 0, st.FeatureCount)
	require.Zero(t, st.TotalArea)
	require.Zero(t, st.MeanArea)
	require.Equal(t, orb.Bound{}, st.Bounds)
	require.Equal(t, crs.WGS84, st.CRS)
}

func TestStatistics(t *testing.T) {
	s := mustStore(t,
		Row{Geometry: square(0, 0, 2, 2)},
		Row{Geometry: orb.Point{-5, 1}},
		Row{Geometry: orb.LineString{{0, 0}, {10, 10}}},
		Row{Geometry: orb.Polygon{
			{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
			{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}},
		}},
	)

	st := Statistics(s)
	require.Equal(t, 4, st.FeatureCount)
	require.InDelta(t, 4+15, st.TotalArea, 1e-12)
	require.InDelta(t, 19.0/4, st.MeanArea, 1e-12)
	require.Equal(t, orb.Bound{Min: orb.Point{-5, 0}, Max: orb.Point{10, 10}}, st.Bounds)
}

func TestSignedArea(t *testing.T) {
	ccw := square(0, 0, 3, 2)
	cw := orb.Polygon{{{0, 0}, {0, 2}, {3, 2}, {3, 0}, {0, 0}}}

	require.InDelta(t, 6, SignedArea(ccw), 1e-12)
	require.InDelta(t, -6, SignedArea(cw), 1e-12)
	require.InDelta(t, 0, SignedArea(orb.MultiPolygon{ccw, cw}), 1e-12)
	require.Zero(t, SignedArea(orb.Point{1, 1}))
	require.Zero(t, SignedArea(orb.MultiLineString{{{0, 0}, {1, 1}}}))
	require.Zero(t, SignedArea(orb.Polygon{}))

	// holes reduce the magnitude whatever their own winding
	withHole := orb.Polygon{
		{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}},
		{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}},
	}
	require.InDelta(t, -15, SignedArea(withHole), 1e-12)
}
