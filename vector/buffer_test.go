package vector

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/tingold/geopipe/geoerr"
)

// area of the regular polygon the buffer uses for a full circle of radius r
func circleArea(r float64) float64 {
	n := 4 * DefaultQuadrantSegments
	return 0.5 * float64(n) * math.Sin(2*math.Pi/float64(n)) * r * r
}

func buffered(t *testing.T, g orb.Geometry, d float64) orb.Geometry {
	t.Helper()
	out, err := Buffer(mustStore(t, Row{Geometry: g, Attributes: map[string]any{"k": "v"}}), d, BufferOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.Equal(t, "v", out.Row(0).Attributes["k"])
	return out.Row(0).Geometry
}

func TestBuffer_Zero(t *testing.T) {
	s := mustStore(t,
		Row{Geometry: orb.Point{1, 2}},
		Row{Geometry: orb.LineString{{0, 0}, {3, 4}}},
		Row{Geometry: square(0, 0, 1, 1)},
	)
	out, err := Buffer(s, 0, BufferOptions{})
	require.NoError(t, err)
	require.True(t, s.Equal(out))
}

func TestBuffer_InvalidDistance(t *testing.T) {
	s := mustStore(t, Row{Geometry: orb.Point{0, 0}})
	for _, d := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Buffer(s, d, BufferOptions{})
		require.ErrorIs(t, err, geoerr.ErrInvalidDistance)
	}
}

func TestBuffer_Point(t *testing.T) {
	g := buffered(t, orb.Point{3, 4}, 2)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	require.Equal(t, poly[0][0], poly[0][len(poly[0])-1])
	require.InDelta(t, circleArea(2), SignedArea(poly), 1e-9)

	for _, p := range poly[0] {
		require.InDelta(t, 2, math.Hypot(p[0]-3, p[1]-4), 1e-12)
	}
	require.True(t, Intersects(poly, orb.Point{3, 4}))
}

func TestBuffer_Line(t *testing.T) {
	g := buffered(t, orb.LineString{{0, 0}, {2, 0}}, 1)
	require.InDelta(t, 4+circleArea(1), SignedArea(g), 1e-9)

	b := g.Bound()
	require.InDelta(t, -1, b.Min[0], 1e-12)
	require.InDelta(t, 3, b.Max[0], 1e-12)
	require.InDelta(t, -1, b.Min[1], 1e-12)
	require.InDelta(t, 1, b.Max[1], 1e-12)
}

func TestBuffer_BentLine(t *testing.T) {
	g := buffered(t, orb.LineString{{0, 0}, {4, 0}, {4, 4}}, 1)
	// two 4x2 strips overlapping in a 1x1 square, an outer quarter circle
	// at the bend and half circles at both ends
	want := 8 + 8 - 1 + circleArea(1)*(0.25+1)
	require.InDelta(t, want, SignedArea(g), 1e-9)

	for _, p := range []orb.Point{{0, 0}, {4, 0}, {4, 4}, {2, 0.9}, {3.1, 3}} {
		require.True(t, Intersects(g, p), "%v", p)
	}
	require.False(t, Intersects(g, orb.Point{2, 2}))
}

func TestBuffer_Polygon(t *testing.T) {
	g := buffered(t, square(-1, -1, 1, 1), 1)
	require.InDelta(t, 4+8+circleArea(1), SignedArea(g), 1e-9)

	// clockwise input still grows
	cw := orb.Polygon{{{-1, -1}, {-1, 1}, {1, 1}, {1, -1}, {-1, -1}}}
	g = buffered(t, cw, 1)
	require.InDelta(t, 4+8+circleArea(1), SignedArea(g), 1e-9)
}

func TestBuffer_Shrink(t *testing.T) {
	g := buffered(t, square(-1, -1, 1, 1), -0.5)
	require.InDelta(t, 1, SignedArea(g), 1e-9)
	b := g.Bound()
	require.InDelta(t, -0.5, b.Min[0], 1e-9)
	require.InDelta(t, -0.5, b.Min[1], 1e-9)
	require.InDelta(t, 0.5, b.Max[0], 1e-9)
	require.InDelta(t, 0.5, b.Max[1], 1e-9)

	g = buffered(t, square(-1, -1, 1, 1), -1.5)
	require.Equal(t, orb.Polygon{}, g)

	g = buffered(t, orb.MultiPolygon{square(-1, -1, 1, 1), square(10, 10, 20, 20)}, -2)
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 1)
	require.InDelta(t, 36, SignedArea(mp), 1e-9)
}

func TestBuffer_Holes(t *testing.T) {
	donut := orb.Polygon{
		{{-2, -2}, {2, -2}, {2, 2}, {-2, 2}, {-2, -2}},
		{{-1, -1}, {-1, 1}, {1, 1}, {1, -1}, {-1, -1}},
	}

	g := buffered(t, donut, 0.25)
	poly := g.(orb.Polygon)
	require.Len(t, poly, 2)
	require.InDelta(t, 16+4+circleArea(0.25)-2.25, SignedArea(poly), 1e-9)

	// the hole closes up
	g = buffered(t, donut, 1.5)
	poly = g.(orb.Polygon)
	require.Len(t, poly, 1)
	require.InDelta(t, 16+24+circleArea(1.5), SignedArea(poly), 1e-9)

	// shrinking widens the hole and rounds its corners
	g = buffered(t, donut, -0.25)
	poly = g.(orb.Polygon)
	require.Len(t, poly, 2)
	require.InDelta(t, 3.5*3.5-(4+2+circleArea(0.25)), SignedArea(poly), 1e-9)
}

// selfIntersects reports whether two non-adjacent edges of a ring cross.
func selfIntersects(r orb.Ring) bool {
	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			a, b, c, d := r[i], r[i+1], r[j], r[j+1]
			d1, d2 := cross(c, d, a), cross(c, d, b)
			d3, d4 := cross(a, b, c), cross(a, b, d)
			if d1*d2 < 0 && d3*d4 < 0 {
				return true
			}
		}
	}
	return false
}

func TestBuffer_ConcaveFillsSlot(t *testing.T) {
	// 10x10 square with a 2 wide, 8 deep slot cut down from the top
	u := orb.Polygon{{
		{0, 0}, {10, 0}, {10, 10}, {6, 10}, {6, 2}, {4, 2}, {4, 10}, {0, 10}, {0, 0},
	}}

	g := buffered(t, u, 2)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	require.False(t, selfIntersects(poly[0]))

	// the filled square plus its rounded band, less the small notch left
	// above the slot mouth
	require.InDelta(t, 100+80+circleArea(2), SignedArea(poly), 0.5)
	require.Less(t, SignedArea(poly), 100+80+circleArea(2))
	require.True(t, Intersects(poly, orb.Point{5, 6}))
	require.True(t, Intersects(poly, orb.Point{5, 10.5}))
	require.False(t, Intersects(poly, orb.Point{5, 11.9}))
}

func TestBuffer_ErosionSplitsNeck(t *testing.T) {
	// two 10x10 squares joined by a 4 long, 2 wide neck
	dumbbell := orb.Polygon{{
		{0, 0}, {10, 0}, {10, 4}, {14, 4}, {14, 0}, {24, 0},
		{24, 10}, {14, 10}, {14, 6}, {10, 6}, {10, 10}, {0, 10}, {0, 0},
	}}

	g := buffered(t, dumbbell, -2)
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	require.InDelta(t, 72, SignedArea(mp), 1e-6)

	for i, want := range []orb.Bound{
		{Min: orb.Point{2, 2}, Max: orb.Point{8, 8}},
		{Min: orb.Point{16, 2}, Max: orb.Point{22, 8}},
	} {
		require.Len(t, mp[i], 1)
		require.InDelta(t, 36, SignedArea(mp[i]), 1e-6)
		b := mp[i].Bound()
		require.InDelta(t, want.Min[0], b.Min[0], 1e-9)
		require.InDelta(t, want.Min[1], b.Min[1], 1e-9)
		require.InDelta(t, want.Max[0], b.Max[0], 1e-9)
		require.InDelta(t, want.Max[1], b.Max[1], 1e-9)
	}
	require.False(t, Intersects(mp, orb.Point{12, 5}))
}

func TestBuffer_OverlappingPartsMerge(t *testing.T) {
	g := buffered(t, orb.MultiPolygon{square(0, 0, 2, 2), square(3, 0, 5, 2)}, 1)
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 1)
	require.False(t, selfIntersects(mp[0][0]))
	require.True(t, Intersects(mp, orb.Point{2.5, 1}))
}

func TestBuffer_NegativePointsAndLines(t *testing.T) {
	require.Equal(t, orb.Polygon{}, buffered(t, orb.Point{0, 0}, -1))
	require.Equal(t, orb.Polygon{}, buffered(t, orb.LineString{{0, 0}, {1, 1}}, -1))
	require.Equal(t, orb.MultiPolygon{}, buffered(t, orb.MultiPoint{{0, 0}, {1, 1}}, -1))
}

func TestBuffer_Multi(t *testing.T) {
	g := buffered(t, orb.MultiPoint{{0, 0}, {10, 0}}, 1)
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	require.InDelta(t, 2*circleArea(1), SignedArea(mp), 1e-9)

	g = buffered(t, orb.MultiLineString{{{0, 0}, {1, 0}}, {{0, 5}, {1, 5}}}, 0.5)
	mp, ok = g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
}

func TestBuffer_DoesNotMutateInput(t *testing.T) {
	s := mustStore(t, Row{Geometry: square(0, 0, 1, 1)})
	_, err := Buffer(s, 1, BufferOptions{})
	require.NoError(t, err)
	require.Equal(t, square(0, 0, 1, 1), s.Row(0).Geometry)
}
