package vector

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestIntersects(t *testing.T) {
	sq := square(-1, -1, 1, 1)
	donut := orb.Polygon{
		{{-3, -3}, {3, -3}, {3, 3}, {-3, 3}, {-3, -3}},
		{{-1, -1}, {-1, 1}, {1, 1}, {1, -1}, {-1, -1}},
	}

	tests := []struct {
		name string
		a, b orb.Geometry
		want bool
	}{
		{"point inside polygon", orb.Point{0, 0}, sq, true},
		{"point on polygon edge", orb.Point{1, 0}, sq, true},
		{"point on polygon corner", orb.Point{1, 1}, sq, true},
		{"point outside polygon", orb.Point{1.5, 0}, sq, false},
		{"point in hole", orb.Point{0, 0}, donut, false},
		{"point on hole edge", orb.Point{-1, 0}, donut, true},
		{"point in ring", orb.Point{2, 2}, donut, true},
		{"equal points", orb.Point{2, 3}, orb.Point{2, 3}, true},
		{"distinct points", orb.Point{2, 3}, orb.Point{2, 3.5}, false},
		{"point on line", orb.Point{1, 1}, orb.LineString{{0, 0}, {2, 2}}, true},
		{"point off line", orb.Point{1, 1.1}, orb.LineString{{0, 0}, {2, 2}}, false},
		{"crossing lines", orb.LineString{{0, 0}, {2, 2}}, orb.LineString{{0, 2}, {2, 0}}, true},
		{"touching lines", orb.LineString{{0, 0}, {1, 1}}, orb.LineString{{1, 1}, {2, 0}}, true},
		{"collinear overlap", orb.LineString{{0, 0}, {2, 0}}, orb.LineString{{1, 0}, {3, 0}}, true},
		{"parallel lines", orb.LineString{{0, 0}, {2, 0}}, orb.LineString{{0, 1}, {2, 1}}, false},
		{"line through polygon", orb.LineString{{-2, 0}, {2, 0}}, sq, true},
		{"line inside polygon", orb.LineString{{-0.5, 0}, {0.5, 0}}, sq, true},
		{"line inside hole", orb.LineString{{-0.5, 0}, {0.5, 0}}, donut, false},
		{"line outside polygon", orb.LineString{{2, 2}, {3, 3}}, sq, false},
		{"overlapping polygons", sq, square(0, 0, 2, 2), true},
		{"touching polygons", sq, square(1, -1, 2, 1), true},
		{"nested polygons", square(-5, -5, 5, 5), sq, true},
		{"disjoint polygons", sq, square(2, 2, 3, 3), false},
		{"polygon in hole", square(-0.5, -0.5, 0.5, 0.5), donut, false},
		{"multipoint one inside", orb.MultiPoint{{5, 5}, {0, 0}}, sq, true},
		{"multipolygon", orb.MultiPolygon{square(5, 5, 6, 6), sq}, orb.Point{0.5, 0.5}, true},
		{"multilinestring", orb.MultiLineString{{{5, 5}, {6, 6}}, {{0, -2}, {0, 2}}}, sq, true},
		{"empty polygon", orb.Polygon{}, sq, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Intersects(tt.a, tt.b))
			require.Equal(t, tt.want, Intersects(tt.b, tt.a))
		})
	}
}
