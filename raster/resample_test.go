package raster

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

func TestReproject_SameCRSIsIdentity(t *testing.T) {
	s, err := New(testMeta(3, 2, Uint16), [][]float64{{1, 2, 3, 4, 5, 6}, {6, 5, 4, 3, 2, 1}})
	require.NoError(t, err)

	out, err := Reproject(context.Background(), s, crs.WGS84, Options{})
	require.NoError(t, err)
	require.True(t, s.Equal(out))
	require.NotSame(t, s, out)
}

func TestReproject_ConstantField(t *testing.T) {
	m := testMeta(8, 8, Float64)
	m.NoData = Float(-1)
	s, err := New(m, [][]float64{constant(64, 5), constant(64, 7)})
	require.NoError(t, err)

	out, err := Reproject(context.Background(), s, crs.WebMercator, Options{})
	require.NoError(t, err)
	require.Equal(t, crs.WebMercator, out.CRS())
	require.Equal(t, 2, out.BandCount())
	require.Equal(t, Float64, out.DType())

	nd, ok := out.NoData()
	require.True(t, ok)
	require.Equal(t, -1.0, nd)

	for b, want := range []float64{5, 7} {
		band, err := out.Band(b + 1)
		require.NoError(t, err)
		filled := 0
		for _, v := range band {
			if v == nd {
				continue
			}
			require.InDelta(t, want, v, 1e-9)
			filled++
		}
		require.Greater(t, filled, len(band)/2)
		require.InDelta(t, want, out.At(b+1, out.Height()/2, out.Width()/2), 1e-9)
	}
}

func TestReproject_WorkersDoNotChangeOutput(t *testing.T) {
	n := 16 * 12
	bands := make([][]float64, 5)
	for b := range bands {
		bands[b] = make([]float64, n)
		for i := range bands[b] {
			bands[b][i] = float64((i*7 + b*13) % 255)
		}
	}
	s, err := New(testMeta(16, 12, Uint8), bands)
	require.NoError(t, err)

	serial, err := Reproject(context.Background(), s, crs.UTM(32, true), Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := Reproject(context.Background(), s, crs.UTM(32, true), Options{Workers: 8})
	require.NoError(t, err)
	require.True(t, serial.Equal(parallel))

	for b := 1; b <= serial.BandCount(); b++ {
		band, _ := serial.Band(b)
		for _, v := range band {
			require.Equal(t, math.Round(v), v)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 255.0)
		}
	}
}

func TestReproject_OutsideWithoutNoDataIsZero(t *testing.T) {
	s, err := New(testMeta(4, 4, Float32), [][]float64{constant(16, 3)})
	require.NoError(t, err)

	out, err := Reproject(context.Background(), s, crs.UTM(32, true), Options{})
	require.NoError(t, err)

	band, _ := out.Band(1)
	for _, v := range band {
		if v != 0 {
			require.InDelta(t, 3, v, 1e-6)
		}
	}
}

func TestReproject_Unsupported(t *testing.T) {
	s, err := New(testMeta(2, 2, Uint8), [][]float64{constant(4, 1)})
	require.NoError(t, err)

	_, err = Reproject(context.Background(), s, crs.ID{Authority: "EPSG", Code: 2056}, Options{})
	require.ErrorIs(t, err, geoerr.ErrUnsupportedProjection)
}

func TestReproject_Cancelled(t *testing.T) {
	s, err := New(testMeta(2, 2, Uint8), [][]float64{constant(4, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Reproject(ctx, s, crs.WebMercator, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBilinear(t *testing.T) {
	m := testMeta(2, 2, Float64)
	m.NoData = Float(-9)
	s, err := New(m, [][]float64{{1, -9, 3, 5}})
	require.NoError(t, err)
	band := s.bands[0]

	v, ok := s.bilinear(band, 0.5, 0.5)
	require.True(t, ok)
	require.InDelta(t, 3, v, 1e-12)

	v, ok = s.bilinear(band, 0, 0)
	require.True(t, ok)
	require.Equal(t, 1.0, v)

	// pixel centre of the nodata sample
	_, ok = s.bilinear(band, 1, 0)
	require.False(t, ok)

	// clamped at the edge
	v, ok = s.bilinear(band, 1, 1.4)
	require.True(t, ok)
	require.InDelta(t, 5, v, 1e-12)
}
