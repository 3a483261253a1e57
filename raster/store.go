// Package raster holds multi-band gridded data with its georeferencing and
// the operations that derive new grids from it: reprojection with bilinear
// resampling and pixel-wise band math.
//
// A Store is an immutable value. Every operation allocates a new store and
// accessors return copies, so stores may be shared freely between
// goroutines.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

// ErrShape is returned when band data does not match the declared grid.
var ErrShape = errors.New("raster: band data does not match grid size")

// Meta is the georeferencing and layout of a store.
type Meta struct {
	CRS       crs.ID
	Transform crs.Affine
	Width     int
	Height    int
	DType     DType
	NoData    *float64 // nil when the store has no nodata sentinel
}

// Store is an in-memory multi-band grid. Bands are row-major,
// Height x Width samples each.
type Store struct {
	meta  Meta
	bands [][]float64
}

// New validates meta and bands and returns a store owning copies of them.
// Sample values are cast to the declared dtype.
func New(meta Meta, bands [][]float64) (*Store, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d: %w", meta.Width, meta.Height, ErrShape)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster: no bands: %w", ErrShape)
	}
	if !meta.DType.Valid() {
		return nil, fmt.Errorf("raster: %v: %w", meta.DType, geoerr.ErrUnsupportedDType)
	}
	if meta.CRS.IsZero() {
		return nil, fmt.Errorf("raster: missing crs: %w", geoerr.ErrInvalidCRS)
	}
	if err := meta.Transform.Validate(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}

	n := meta.Width * meta.Height
	out := make([][]float64, len(bands))
	for i, b := range bands {
		if len(b) != n {
			return nil, fmt.Errorf("raster: band %d has %d samples, want %d: %w", i+1, len(b), n, ErrShape)
		}
		cp := make([]float64, n)
		for j, v := range b {
			cp[j] = meta.DType.Cast(v)
		}
		out[i] = cp
	}

	if meta.NoData != nil {
		nd := *meta.NoData
		meta.NoData = &nd
	}

	return &Store{meta: meta, bands: out}, nil
}

// newOwned wraps bands without copying. Callers must not retain them.
func newOwned(meta Meta, bands [][]float64) *Store {
	return &Store{meta: meta, bands: bands}
}

// Meta returns the store metadata.
func (s *Store) Meta() Meta {
	m := s.meta
	if m.NoData != nil {
		nd := *m.NoData
		m.NoData = &nd
	}
	return m
}

func (s *Store) CRS() crs.ID { return s.meta.CRS }
func (s *Store) Transform() crs.Affine { return s.meta.Transform }
func (s *Store) Width() int { return s.meta.Width }
func (s *Store) Height() int { return s.meta.Height }
func (s *Store) BandCount() int { return len(s.bands) }
func (s *Store) DType() DType { return s.meta.DType }
func (s *Store) Bounds() orb.Bound { return s.meta.Transform.Bounds(s.meta.Width, s.meta.Height) }

// NoData returns the nodata sentinel and whether one is set.
func (s *Store) NoData() (float64, bool) {
	if s.meta.NoData == nil {
		return 0, false
	}
	return *s.meta.NoData, true
}

// IsNoData reports whether v equals the nodata sentinel. A NaN sentinel
// matches NaN samples.
func (s *Store) IsNoData(v float64) bool {
	if s.meta.NoData == nil {
		return false
	}
	nd := *s.meta.NoData
	if math.IsNaN(nd) {
		return math.IsNaN(v)
	}
	return v == nd
}

// Band returns a copy of band i (1-based).
func (s *Store) Band(i int) ([]float64, error) {
	if i < 1 || i > len(s.bands) {
		return nil, fmt.Errorf("raster: band %d of %d: %w", i, len(s.bands), geoerr.ErrInsufficientBands)
	}
	cp := make([]float64, len(s.bands[i-1]))
	copy(cp, s.bands[i-1])
	return cp, nil
}

// At returns the sample of band i (1-based) at row, col.
func (s *Store) At(i, row, col int) float64 {
	return s.bands[i-1][row*s.meta.Width+col]
}

// Clone returns an independent copy of s.
func (s *Store) Clone() *Store {
	bands := make([][]float64, len(s.bands))
	for i, b := range s.bands {
		bands[i] = append([]float64(nil), b...)
	}
	return newOwned(s.Meta(), bands)
}

// Equal reports whether two stores hold bit-identical data and metadata.
func (s *Store) Equal(o *Store) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.meta.CRS != o.meta.CRS || s.meta.Transform != o.meta.Transform ||
		s.meta.Width != o.meta.Width || s.meta.Height != o.meta.Height ||
		s.meta.DType != o.meta.DType || len(s.bands) != len(o.bands) {
		return false
	}
	a, aok := s.NoData()
	b, bok := o.NoData()
	if aok != bok || (aok && math.Float64bits(a) != math.Float64bits(b)) {
		return false
	}
	for i := range s.bands {
		for j := range s.bands[i] {
			if math.Float64bits(s.bands[i][j]) != math.Float64bits(o.bands[i][j]) {
				return false
			}
		}
	}
	return true
}

// Float returns a pointer to v, for Meta.NoData literals.
func Float(v float64) *float64 {
	return &v
}
