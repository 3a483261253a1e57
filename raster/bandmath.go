package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/tingold/geopipe/geoerr"
)

// Epsilon keeps index denominators away from zero.
const Epsilon = 1e-8

// IndexNoData returns the sentinel for output pixels where any operand was
// nodata. It is NaN, which no op yields for finite operands other than the
// zero-denominator corner of OpNormalizedDifference.
func IndexNoData() float64 { return math.NaN() }

// ErrInvalidBandIndex is returned for band indices below 1.
var ErrInvalidBandIndex = errors.New("raster: band index must be >= 1")

// Op is a pixel-wise expression over two bands.
type Op int

const (
	// OpNormalizedDifference computes (a-b)/(a+b+Epsilon).
	OpNormalizedDifference Op = iota
	// OpRatio computes a/(b+Epsilon).
	OpRatio
	// OpDifference computes a-b.
	OpDifference
)

func (o Op) String() string {
	switch o {
	case OpNormalizedDifference:
		return "normalized_difference"
	case OpRatio:
		return "ratio"
	case OpDifference:
		return "difference"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp resolves an op name as printed by Op.String.
func ParseOp(s string) (Op, error) {
	for _, o := range []Op{OpNormalizedDifference, OpRatio, OpDifference} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("raster: unknown band op %q", s)
}

func (o Op) eval(a, b float64) float64 {
	switch o {
	case OpRatio:
		return a / (b + Epsilon)
	case OpDifference:
		return a - b
	default:
		return (a - b) / (a + b + Epsilon)
	}
}

// BandMath evaluates op over bands a and b (1-based) and returns a single
// float64 band store on the same grid.
func BandMath(s *Store, op Op, a, b int) (*Store, error) {
	for _, idx := range []int{a, b} {
		if idx < 1 {
			return nil, fmt.Errorf("raster: band %d: %w", idx, ErrInvalidBandIndex)
		}
		if idx > len(s.bands) {
			return nil, fmt.Errorf("raster: band %d requested, store has %d: %w", idx, len(s.bands), geoerr.ErrInsufficientBands)
		}
	}
	switch op {
	case OpNormalizedDifference, OpRatio, OpDifference:
	default:
		return nil, fmt.Errorf("raster: unknown band op %v", op)
	}

	ba, bb := s.bands[a-1], s.bands[b-1]
	out := make([]float64, len(ba))
	masked := false
	for i := range out {
		if s.IsNoData(ba[i]) || s.IsNoData(bb[i]) {
			out[i] = IndexNoData()
			masked = true
			continue
		}
		out[i] = op.eval(ba[i], bb[i])
	}

	meta := s.Meta()
	meta.DType = Float64
	meta.NoData = nil
	if masked || s.meta.NoData != nil {
		meta.NoData = Float(IndexNoData())
	}
	return newOwned(meta, [][]float64{out}), nil
}
