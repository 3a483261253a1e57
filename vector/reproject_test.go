package vector

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

func TestReproject(t *testing.T) {
	s := mustStore(t,
		Row{Geometry: orb.Point{13.405, 52.52}, Attributes: map[string]any{"city": "Berlin"}},
		Row{Geometry: square(14, 50, 16, 52)},
	)

	out, err := Reproject(s, crs.UTM(33, true))
	require.NoError(t, err)
	require.Equal(t, crs.UTM(33, true), out.CRS())
	require.Equal(t, 2, out.Len())

	p := out.Row(0).Geometry.(orb.Point)
	require.InDelta(t, 391779.26, p[0], 0.5)
	require.InDelta(t, 5820072.16, p[1], 0.5)
	require.Equal(t, "Berlin", out.Row(0).Attributes["city"])

	// source untouched
	require.Equal(t, orb.Point{13.405, 52.52}, s.Row(0).Geometry)

	back, err := Reproject(out, crs.WGS84)
	require.NoError(t, err)
	bp := back.Row(0).Geometry.(orb.Point)
	require.InDelta(t, 13.405, bp[0], 1e-6)
	require.InDelta(t, 52.52, bp[1], 1e-6)

	ring := back.Row(1).Geometry.(orb.Polygon)[0]
	for i, q := range square(14, 50, 16, 52)[0] {
		require.InDelta(t, q[0], ring[i][0], 1e-6)
		require.InDelta(t, q[1], ring[i][1], 1e-6)
	}
}

func TestReproject_SameCRS(t *testing.T) {
	s := mustStore(t, Row{Geometry: orb.Point{1, 2}, Attributes: map[string]any{"a": "b"}})
	out, err := Reproject(s, crs.WGS84)
	require.NoError(t, err)
	require.True(t, s.Equal(out))
}

func TestReproject_Unsupported(t *testing.T) {
	s := mustStore(t, Row{Geometry: orb.Point{1, 2}})
	_, err := Reproject(s, crs.ID{Authority: "EPSG", Code: 27700})
	require.ErrorIs(t, err, geoerr.ErrUnsupportedProjection)
}

func TestClipToBound(t *testing.T) {
	s := mustStore(t,
		Row{Geometry: orb.Point{0.5, 0.5}, Attributes: map[string]any{"n": 0}},
		Row{Geometry: orb.Point{5, 5}, Attributes: map[string]any{"n": 1}},
		Row{Geometry: square(-1, -1, 2, 2), Attributes: map[string]any{"n": 2}},
		Row{Geometry: orb.LineString{{-1, 0.5}, {3, 0.5}}, Attributes: map[string]any{"n": 3}},
	)

	out := ClipToBound(s, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}})
	require.Equal(t, 3, out.Len())
	require.Equal(t, 0.0, out.Row(0).Attributes["n"])
	require.InDelta(t, 1, math.Abs(SignedArea(out.Row(1).Geometry)), 1e-12)
	require.Equal(t, orb.LineString{{0, 0.5}, {1, 0.5}}, out.Row(2).Geometry)

	// input untouched
	require.Equal(t, square(-1, -1, 2, 2), s.Row(2).Geometry)
}
