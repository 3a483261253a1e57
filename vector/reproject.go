package vector

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/project"

	"github.com/tingold/geopipe/crs"
)

// Reproject transforms every coordinate into dst. A store already in dst
// is copied unchanged.
func Reproject(s *Store, dst crs.ID) (*Store, error) {
	if s.crs == dst {
		return newOwned(s.crs, cloneRows(s.rows)), nil
	}

	t, err := crs.NewTransformer(s.crs, dst)
	if err != nil {
		return nil, fmt.Errorf("vector: reproject %s -> %s: %w", s.crs, dst, err)
	}

	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		g := orb.Clone(r.Geometry)
		out[i] = Row{
			Geometry:   project.Geometry(g, t.Projection()),
			Attributes: cloneAttributes(r.Attributes),
		}
	}
	return newOwned(dst, out), nil
}

// ClipToBound clips every geometry to b and drops rows left empty.
func ClipToBound(s *Store, b orb.Bound) *Store {
	var out []Row
	for _, r := range s.rows {
		if IsEmpty(r.Geometry) {
			continue
		}
		g := clip.Geometry(b, orb.Clone(r.Geometry))
		if g == nil || IsEmpty(g) {
			continue
		}
		if checkGeometry(g) != nil {
			continue
		}
		out = append(out, Row{Geometry: g, Attributes: cloneAttributes(r.Attributes)})
	}
	return newOwned(s.crs, out)
}
