package vector

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func mustStore(t *testing.T, rows ...Row) *Store {
	t.Helper()
	s, err := New(crs.WGS84, rows)
	require.NoError(t, err)
	return s
}

func TestNew_NormalizesAttributes(t *testing.T) {
	s := mustStore(t, Row{
		Geometry: orb.Point{1, 2},
		Attributes: map[string]any{
			"int":    int(3),
			"int64":  int64(-4),
			"uint8":  uint8(5),
			"f32":    float32(0.5),
			"num":    json.Number("6.25"),
			"name":   "x",
			"flag":   true,
			"none":   nil,
			"nested": map[string]any{"v": int16(7)},
			"list":   []any{uint32(8), "y"},
		},
	})

	require.Equal(t, map[string]any{
		"int":    3.0,
		"int64":  -4.0,
		"uint8":  5.0,
		"f32":    0.5,
		"num":    6.25,
		"name":   "x",
		"flag":   true,
		"none":   nil,
		"nested": map[string]any{"v": 7.0},
		"list":   []any{8.0, "y"},
	}, s.Row(0).Attributes)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(crs.ID{}, nil)
	require.ErrorIs(t, err, geoerr.ErrInvalidCRS)

	for _, g := range []orb.Geometry{nil, orb.Ring{{0, 0}, {1, 0}, {0, 1}, {0, 0}}, orb.Bound{}, orb.Collection{orb.Point{}}} {
		_, err := New(crs.WGS84, []Row{{Geometry: g}})
		require.ErrorIs(t, err, ErrUnsupportedGeometry)
	}

	_, err = New(crs.WGS84, []Row{{Geometry: orb.Point{}, Attributes: map[string]any{"c": complex(1, 2)}}})
	require.ErrorIs(t, err, ErrUnsupportedAttribute)
}

func TestStore_CopiesInAndOut(t *testing.T) {
	ls := orb.LineString{{0, 0}, {1, 1}}
	attrs := map[string]any{"k": "v", "list": []any{"a"}}
	s := mustStore(t, Row{Geometry: ls, Attributes: attrs})

	ls[0] = orb.Point{9, 9}
	attrs["k"] = "changed"
	require.Equal(t, orb.LineString{{0, 0}, {1, 1}}, s.Row(0).Geometry)
	require.Equal(t, "v", s.Row(0).Attributes["k"])

	r := s.Row(0)
	r.Geometry.(orb.LineString)[1] = orb.Point{5, 5}
	r.Attributes["list"].([]any)[0] = "b"
	require.Equal(t, orb.LineString{{0, 0}, {1, 1}}, s.Rows()[0].Geometry)
	require.Equal(t, []any{"a"}, s.Rows()[0].Attributes["list"])
}

func TestStore_Bounds(t *testing.T) {
	s := mustStore(t,
		Row{Geometry: orb.Point{-3, 1}},
		Row{Geometry: orb.Polygon{}},
		Row{Geometry: square(0, 0, 2, 5)},
	)
	b, ok := s.Bounds()
	require.True(t, ok)
	require.Equal(t, orb.Bound{Min: orb.Point{-3, 0}, Max: orb.Point{2, 5}}, b)

	_, ok = mustStore(t).Bounds()
	require.False(t, ok)
}

func TestStore_Equal(t *testing.T) {
	a := mustStore(t, Row{Geometry: orb.Point{1, 2}, Attributes: map[string]any{"a": 1}})
	b := mustStore(t, Row{Geometry: orb.Point{1, 2}, Attributes: map[string]any{"a": 1.0}})
	require.True(t, a.Equal(b))

	c := mustStore(t, Row{Geometry: orb.Point{1, 3}, Attributes: map[string]any{"a": 1}})
	require.False(t, a.Equal(c))
}
