package flatgeobuf

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/interchange"
	"github.com/tingold/geopipe/vector"
)

// generateStore creates n random features of geomType in lon/lat.
func generateStore(tb testing.TB, r *rand.Rand, n int, geomType string, withProperties bool) *vector.Store {
	tb.Helper()

	rows := make([]vector.Row, n)
	for i := range rows {
		x := -179 + r.Float64()*358
		y := -89 + r.Float64()*178

		var g orb.Geometry
		switch geomType {
		case "point":
			g = orb.Point{x, y}
		case "linestring":
			line := make(orb.LineString, 10)
			for j := range line {
				line[j] = orb.Point{x + float64(j)*0.01, y + float64(j)*0.01}
			}
			g = line
		case "polygon":
			size := 0.01 + r.Float64()*0.09
			g = orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
		case "complexpolygon":
			radius := 0.01 + r.Float64()*0.05
			ring := make(orb.Ring, 33)
			for j := 0; j < 32; j++ {
				angle := 2 * math.Pi * float64(j) / 32
				ring[j] = orb.Point{x + radius*math.Cos(angle), y + radius*math.Sin(angle)}
			}
			ring[32] = ring[0]
			g = orb.Polygon{ring}
		}

		rows[i] = vector.Row{Geometry: g}
		if withProperties {
			rows[i].Attributes = map[string]any{
				"id":       float64(i),
				"name":     fmt.Sprintf("Feature %d", i),
				"value":    r.Float64() * 1000,
				"active":   r.Intn(2) == 1,
				"category": fmt.Sprintf("cat_%d", r.Intn(10)),
			}
		}
	}

	s, err := vector.New(crs.WGS84, rows)
	if err != nil {
		tb.Fatalf("vector.New failed: %v", err)
	}
	return s
}

func TestSizeComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("size report")
	}
	r := rand.New(rand.NewSource(42))

	for _, geomType := range []string{"point", "linestring", "polygon", "complexpolygon"} {
		for _, withProps := range []bool{false, true} {
			t.Logf("=== %s (properties: %v) ===", geomType, withProps)
			t.Logf("%-10s | %-15s | %-15s | %-15s | %-8s", "Features", "GeoJSON (bytes)", "FGB (bytes)", "FGB+Index", "Savings")

			for _, n := range []int{10, 100, 1000} {
				s := generateStore(t, r, n, geomType, withProps)

				doc, err := interchange.Encode(s)
				if err != nil {
					t.Fatalf("interchange.Encode failed: %v", err)
				}

				var plain, indexed bytes.Buffer
				if err := WriteStore(&plain, s, &Options{IncludeIndex: false}); err != nil {
					t.Fatalf("WriteStore failed: %v", err)
				}
				if err := WriteStore(&indexed, s, &Options{IncludeIndex: true}); err != nil {
					t.Fatalf("WriteStore with index failed: %v", err)
				}

				savings := float64(len(doc)-plain.Len()) / float64(len(doc)) * 100
				t.Logf("%-10d | %-15d | %-15d | %-15d | %.1f%%", n, len(doc), plain.Len(), indexed.Len(), savings)
			}
		}
	}
}

var benchCases = []struct {
	geomType  string
	n         int
	withProps bool
}{
	{"point", 1000, false},
	{"point", 1000, true},
	{"polygon", 1000, false},
	{"complexpolygon", 1000, false},
	{"linestring", 1000, false},
}

func benchName(geomType string, n int, withProps bool) string {
	if withProps {
		return fmt.Sprintf("%s_props_%d", geomType, n)
	}
	return fmt.Sprintf("%s_%d", geomType, n)
}

func BenchmarkSerialize(b *testing.B) {
	for _, bc := range benchCases {
		s := generateStore(b, rand.New(rand.NewSource(42)), bc.n, bc.geomType, bc.withProps)
		name := benchName(bc.geomType, bc.n, bc.withProps)

		b.Run("GeoJSON/"+name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := interchange.Encode(s); err != nil {
					b.Fatal(err)
				}
			}
		})
		for _, idx := range []bool{false, true} {
			label := "FlatGeobuf/"
			if idx {
				label = "FlatGeobufIdx/"
			}
			opts := &Options{IncludeIndex: idx}
			b.Run(label+name, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					var buf bytes.Buffer
					if err := WriteStore(&buf, s, opts); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for _, bc := range benchCases {
		s := generateStore(b, rand.New(rand.NewSource(42)), bc.n, bc.geomType, bc.withProps)
		name := benchName(bc.geomType, bc.n, bc.withProps)

		doc, err := interchange.Encode(s)
		if err != nil {
			b.Fatal(err)
		}
		var buf bytes.Buffer
		if err := WriteStore(&buf, s, DefaultOptions()); err != nil {
			b.Fatal(err)
		}
		data := buf.Bytes()

		b.Run("GeoJSON/"+name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := interchange.Decode(doc); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run("FlatGeobuf/"+name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				r, err := NewReaderFromData(data)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := r.ReadStore(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	s := generateStore(b, rand.New(rand.NewSource(42)), 10000, "polygon", false)
	var buf bytes.Buffer
	if err := WriteStore(&buf, s, DefaultOptions()); err != nil {
		b.Fatal(err)
	}
	r, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		b.Fatal(err)
	}
	bound := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.Search(bound); err != nil {
			b.Fatal(err)
		}
	}
}
