package crs

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrSingularTransform is returned for transforms that cannot be inverted.
var ErrSingularTransform = errors.New("crs: singular affine transform")

// Affine maps pixel column/row to world x/y:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the pixel-equals-world transform.
var Identity = Affine{A: 1, E: 1}

// FromOrigin builds a north-up transform from the top-left corner and pixel
// sizes. Both sizes are positive.
func FromOrigin(west, north, xsize, ysize float64) Affine {
	return Affine{A: xsize, C: west, E: -ysize, F: north}
}

// FromBounds builds the north-up transform that maps a width x height grid
// exactly onto b.
func FromBounds(b orb.Bound, width, height int) Affine {
	return FromOrigin(b.Min[0], b.Max[1],
		(b.Max[0]-b.Min[0])/float64(width),
		(b.Max[1]-b.Min[1])/float64(height))
}

// Validate checks that the scale terms are non-zero and the transform is
// invertible.
func (a Affine) Validate() error {
	for _, v := range [6]float64{a.A, a.B, a.C, a.D, a.E, a.F} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coefficient in %v", ErrSingularTransform, a)
		}
	}
	if a.A == 0 || a.E == 0 || a.Determinant() == 0 {
		return fmt.Errorf("%w: %v", ErrSingularTransform, a)
	}
	return nil
}

// Determinant of the linear part.
func (a Affine) Determinant() float64 {
	return a.A*a.E - a.B*a.D
}

// Apply maps a (fractional) pixel position to world coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.A*col + a.B*row + a.C, a.D*col + a.E*row + a.F
}

// Invert returns the world-to-pixel transform.
func (a Affine) Invert() (Affine, error) {
	if err := a.Validate(); err != nil {
		return Affine{}, err
	}
	det := a.Determinant()
	ia := a.E / det
	ib := -a.B / det
	id := -a.D / det
	ie := a.A / det
	return Affine{
		A: ia, B: ib, C: -ia*a.C - ib*a.F,
		D: id, E: ie, F: -id*a.C - ie*a.F,
	}, nil
}

// Bounds returns the world envelope of a width x height grid.
func (a Affine) Bounds(width, height int) orb.Bound {
	w, h := float64(width), float64(height)
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := a.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// Coefficients returns the transform as a six element array in A..F order.
func (a Affine) Coefficients() [6]float64 {
	return [6]float64{a.A, a.B, a.C, a.D, a.E, a.F}
}

// AffineFromCoefficients is the inverse of Coefficients.
func AffineFromCoefficients(c [6]float64) Affine {
	return Affine{A: c[0], B: c[1], C: c[2], D: c[3], E: c[4], F: c[5]}
}
