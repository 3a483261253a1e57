// Package vector holds ordered collections of geometries with attributes
// and the spatial operations over them.
//
// Stores are immutable. Every operation returns a freshly allocated store
// and accessors hand out deep copies.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

var (
	// ErrUnsupportedGeometry is returned for nil geometries and types other
	// than points, lines and polygons (and their multi forms).
	ErrUnsupportedGeometry = errors.New("vector: unsupported geometry type")

	// ErrUnsupportedAttribute is returned for attribute values that are not
	// scalars, strings, lists or maps of those.
	ErrUnsupportedAttribute = errors.New("vector: unsupported attribute value")
)

// Row is one feature: a geometry and its attributes.
type Row struct {
	Geometry   orb.Geometry
	Attributes map[string]any
}

// Store is an ordered collection of rows sharing one CRS.
type Store struct {
	crs  crs.ID
	rows []Row
}

// New validates rows and returns a store that owns deep copies of them.
// Numeric attribute values are normalised to float64.
func New(id crs.ID, rows []Row) (*Store, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("vector: missing crs: %w", geoerr.ErrInvalidCRS)
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		if err := checkGeometry(r.Geometry); err != nil {
			return nil, fmt.Errorf("vector: row %d: %w", i, err)
		}
		attrs, err := normalizeAttributes(r.Attributes)
		if err != nil {
			return nil, fmt.Errorf("vector: row %d: %w", i, err)
		}
		out[i] = Row{Geometry: orb.Clone(r.Geometry), Attributes: attrs}
	}

	return &Store{crs: id, rows: out}, nil
}

// newOwned wraps rows without copying or validation.
func newOwned(id crs.ID, rows []Row) *Store {
	return &Store{crs: id, rows: rows}
}

// CRS returns the coordinate system of every geometry in the store.
func (s *Store) CRS() crs.ID { return s.crs }

// Len returns the number of rows.
func (s *Store) Len() int { return len(s.rows) }

// Row returns a deep copy of row i.
func (s *Store) Row(i int) Row {
	return s.rows[i].clone()
}

// Rows returns deep copies of all rows in order.
func (s *Store) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.clone()
	}
	return out
}

// Bounds is the union bounding box of all non-empty geometries. The second
// result is false when there are none.
func (s *Store) Bounds() (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, r := range s.rows {
		if IsEmpty(r.Geometry) {
			continue
		}
		if !found {
			b = r.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(r.Geometry.Bound())
	}
	return b, found
}

// Equal reports whether both stores have the same CRS and rows whose
// geometries are equal and whose attributes are deeply equal.
func (s *Store) Equal(o *Store) bool {
	if s.crs != o.crs || len(s.rows) != len(o.rows) {
		return false
	}
	for i := range s.rows {
		if !orb.Equal(s.rows[i].Geometry, o.rows[i].Geometry) {
			return false
		}
		if !reflect.DeepEqual(s.rows[i].Attributes, o.rows[i].Attributes) {
			return false
		}
	}
	return true
}

func (r Row) clone() Row {
	return Row{Geometry: orb.Clone(r.Geometry), Attributes: cloneAttributes(r.Attributes)}
}

func checkGeometry(g orb.Geometry) error {
	switch g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		return nil
	case nil:
		return fmt.Errorf("nil geometry: %w", ErrUnsupportedGeometry)
	}
	return fmt.Errorf("%T: %w", g, ErrUnsupportedGeometry)
}

// IsEmpty reports whether g has no coordinates.
func IsEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		for _, p := range g {
			if !IsEmpty(p) {
				return false
			}
		}
		return true
	case nil:
		return true
	}
	return false
}

func normalizeAttributes(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// normalizeValue maps every numeric type onto float64 so attribute maps
// compare equal across containers.
func normalizeValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, ErrUnsupportedAttribute)
		}
		return f, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		return normalizeAttributes(v)
	}
	return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedAttribute)
}

func cloneAttributes(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return cloneAttributes(v)
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
