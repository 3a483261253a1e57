package crs

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/geoerr"
)

// Transformer converts points from one system to another through WGS84.
type Transformer struct {
	src, dst    ID
	from, to    Projection
	passthrough bool
}

// NewTransformer relates src to dst.
func NewTransformer(src, dst ID) (*Transformer, error) {
	from, ok := lookup(src)
	if !ok {
		return nil, fmt.Errorf("crs: no transform from %q: %w", src, geoerr.ErrUnsupportedProjection)
	}
	to, ok := lookup(dst)
	if !ok {
		return nil, fmt.Errorf("crs: no transform to %q: %w", dst, geoerr.ErrUnsupportedProjection)
	}
	return &Transformer{src: src, dst: dst, from: from, to: to, passthrough: src == dst}, nil
}

// Source returns the source system.
func (t *Transformer) Source() ID { return t.src }

// Target returns the target system.
func (t *Transformer) Target() ID { return t.dst }

// Transform converts a single point.
func (t *Transformer) Transform(p orb.Point) orb.Point {
	if t.passthrough {
		return p
	}
	lon, lat := t.from.ToWGS84(p[0], p[1])
	x, y := t.to.FromWGS84(lon, lat)
	return orb.Point{x, y}
}

// Projection adapts the transformer for use with orb/project.
func (t *Transformer) Projection() orb.Projection {
	return t.Transform
}

// latticeSteps is the number of sample intervals along each axis of the
// source grid used to estimate the destination extent.
const latticeSteps = 20

// DefaultTransform derives the destination grid for reprojecting a
// width x height raster covering bounds from src to dst. The grid is
// north-up with square pixels whose size keeps the pixel count along the
// diagonal unchanged.
func DefaultTransform(src, dst ID, width, height int, bounds orb.Bound) (Affine, int, int, error) {
	if width <= 0 || height <= 0 {
		return Affine{}, 0, 0, fmt.Errorf("crs: invalid grid size %dx%d", width, height)
	}

	t, err := NewTransformer(src, dst)
	if err != nil {
		return Affine{}, 0, 0, err
	}

	if src == dst {
		return FromBounds(bounds, width, height), width, height, nil
	}

	dx := (bounds.Max[0] - bounds.Min[0]) / latticeSteps
	dy := (bounds.Max[1] - bounds.Min[1]) / latticeSteps

	env := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	valid := 0
	for i := 0; i <= latticeSteps; i++ {
		for j := 0; j <= latticeSteps; j++ {
			p := t.Transform(orb.Point{bounds.Min[0] + float64(i)*dx, bounds.Min[1] + float64(j)*dy})
			if !finite(p[0]) || !finite(p[1]) {
				continue
			}
			env = env.Extend(p)
			valid++
		}
	}
	if valid == 0 {
		return Affine{}, 0, 0, fmt.Errorf("crs: extent %v has no image in %s: %w", bounds, dst, geoerr.ErrUnsupportedProjection)
	}

	diag := math.Hypot(env.Max[0]-env.Min[0], env.Max[1]-env.Min[1])
	res := diag / math.Hypot(float64(width), float64(height))
	if res == 0 || !finite(res) {
		return Affine{}, 0, 0, fmt.Errorf("crs: degenerate extent %v in %s: %w", env, dst, geoerr.ErrUnsupportedProjection)
	}

	dstWidth := int(math.Ceil((env.Max[0]-env.Min[0])/res - 1e-9))
	dstHeight := int(math.Ceil((env.Max[1]-env.Min[1])/res - 1e-9))
	if dstWidth < 1 {
		dstWidth = 1
	}
	if dstHeight < 1 {
		dstHeight = 1
	}

	return FromOrigin(env.Min[0], env.Max[1], res, res), dstWidth, dstHeight, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
