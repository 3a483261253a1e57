package raster

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/tingold/geopipe/crs"
)

// Options tunes reprojection.
type Options struct {
	// Workers bounds the number of bands resampled at once. Zero means
	// GOMAXPROCS.
	Workers int
}

// source position of a destination pixel in fractional source pixel
// coordinates, already shifted so that integer values are pixel centres.
type samplePos struct {
	u, v float64
	ok   bool
}

// Reproject resamples s into dst using bilinear interpolation. When s is
// already in dst an identical copy is returned.
func Reproject(ctx context.Context, s *Store, dst crs.ID, opts Options) (*Store, error) {
	if s.meta.CRS == dst {
		return s.Clone(), nil
	}

	affine, width, height, err := crs.DefaultTransform(s.meta.CRS, dst, s.meta.Width, s.meta.Height, s.Bounds())
	if err != nil {
		return nil, fmt.Errorf("raster: reproject %s -> %s: %w", s.meta.CRS, dst, err)
	}
	back, err := crs.NewTransformer(dst, s.meta.CRS)
	if err != nil {
		return nil, fmt.Errorf("raster: reproject %s -> %s: %w", s.meta.CRS, dst, err)
	}
	inv, err := s.meta.Transform.Invert()
	if err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}

	positions := make([]samplePos, width*height)
	sw, sh := float64(s.meta.Width), float64(s.meta.Height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := affine.Apply(float64(col)+0.5, float64(row)+0.5)
			p := back.Transform(orb.Point{x, y})
			fc, fr := inv.Apply(p[0], p[1])
			if math.IsNaN(fc) || math.IsNaN(fr) || fc < 0 || fr < 0 || fc > sw || fr > sh {
				continue
			}
			positions[row*width+col] = samplePos{u: fc - 0.5, v: fr - 0.5, ok: true}
		}
	}

	meta := s.Meta()
	meta.CRS = dst
	meta.Transform = affine
	meta.Width = width
	meta.Height = height

	fill := 0.0
	if meta.NoData != nil {
		fill = *meta.NoData
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([][]float64, len(s.bands))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range s.bands {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = s.resampleBand(s.bands[i], positions, fill)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newOwned(meta, out), nil
}

func (s *Store) resampleBand(src []float64, positions []samplePos, fill float64) []float64 {
	dst := make([]float64, len(positions))
	for i, pos := range positions {
		if !pos.ok {
			dst[i] = fill
			continue
		}
		v, ok := s.bilinear(src, pos.u, pos.v)
		if !ok {
			dst[i] = fill
			continue
		}
		dst[i] = s.meta.DType.Cast(v)
	}
	return dst
}

// bilinear interpolates src at (u, v). Neighbours beyond the grid edge are
// clamped; nodata neighbours are left out and the remaining weights
// renormalised.
func (s *Store) bilinear(src []float64, u, v float64) (float64, bool) {
	w, h := s.meta.Width, s.meta.Height
	x0 := math.Floor(u)
	y0 := math.Floor(v)
	fx := u - x0
	fy := v - y0

	cols := [2]int{clamp(int(x0), w), clamp(int(x0)+1, w)}
	rows := [2]int{clamp(int(y0), h), clamp(int(y0)+1, h)}
	weights := [2][2]float64{
		{(1 - fx) * (1 - fy), fx * (1 - fy)},
		{(1 - fx) * fy, fx * fy},
	}

	var sum, wsum float64
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			wt := weights[r][c]
			if wt == 0 {
				continue
			}
			val := src[rows[r]*w+cols[c]]
			if s.IsNoData(val) {
				continue
			}
			sum += wt * val
			wsum += wt
		}
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
