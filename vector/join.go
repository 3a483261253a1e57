package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/geoerr"
)

// JoinMode selects which left rows survive a join.
type JoinMode int

const (
	// JoinInner emits one row per intersecting pair.
	JoinInner JoinMode = iota
	// JoinLeft additionally keeps unmatched left rows once.
	JoinLeft
)

func (m JoinMode) String() string {
	switch m {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	}
	return fmt.Sprintf("joinmode(%d)", int(m))
}

// ParseJoinMode resolves "inner" or "left".
func ParseJoinMode(s string) (JoinMode, error) {
	switch s {
	case "inner":
		return JoinInner, nil
	case "left":
		return JoinLeft, nil
	}
	return 0, fmt.Errorf("vector: unknown join mode %q", s)
}

// IndexRight is the attribute naming the matched right row.
const IndexRight = "index_right"

// Join pairs every left row with the right rows whose geometry intersects
// it. Output rows keep the left geometry and merge both attribute maps.
// Attribute names are resolved per column: a key found on any left row and
// any right row is suffixed _left and _right on every output row, and a
// source attribute named index_right is suffixed likewise. Matches are
// emitted in left order, then ascending right index.
func Join(left, right *Store, mode JoinMode) (*Store, error) {
	if left.crs != right.crs {
		return nil, fmt.Errorf("vector: join %s with %s: %w", left.crs, right.crs, geoerr.ErrCRSMismatch)
	}
	if mode != JoinInner && mode != JoinLeft {
		return nil, fmt.Errorf("vector: unknown join mode %v", mode)
	}

	idx := newIndex(right.rows)
	cols := newJoinColumns(left.rows, right.rows)

	var out []Row
	for _, l := range left.rows {
		matched := false
		for _, j := range idx.candidates(l.Geometry) {
			r := right.rows[j]
			if !Intersects(l.Geometry, r.Geometry) {
				continue
			}
			matched = true
			out = append(out, Row{
				Geometry:   orb.Clone(l.Geometry),
				Attributes: cols.merge(l.Attributes, r.Attributes, j),
			})
		}
		if !matched && mode == JoinLeft {
			out = append(out, Row{Geometry: orb.Clone(l.Geometry), Attributes: cols.merge(l.Attributes, nil, -1)})
		}
	}

	return newOwned(left.crs, out), nil
}

// joinColumns holds the attribute keys seen on each side of a join.
type joinColumns struct {
	left, right map[string]struct{}
}

func newJoinColumns(left, right []Row) joinColumns {
	keys := func(rows []Row) map[string]struct{} {
		out := make(map[string]struct{})
		for _, r := range rows {
			for k := range r.Attributes {
				out[k] = struct{}{}
			}
		}
		return out
	}
	return joinColumns{left: keys(left), right: keys(right)}
}

func (c joinColumns) leftName(k string) string {
	if _, ok := c.right[k]; ok || k == IndexRight {
		return k + "_left"
	}
	return k
}

func (c joinColumns) rightName(k string) string {
	if _, ok := c.left[k]; ok || k == IndexRight {
		return k + "_right"
	}
	return k
}

// merge builds one output row's attributes; j < 0 marks an unmatched left
// row, whose index_right is nil.
func (c joinColumns) merge(l, r map[string]any, j int) map[string]any {
	out := make(map[string]any, len(l)+len(r)+1)
	for k, v := range l {
		out[c.leftName(k)] = cloneValue(v)
	}
	for k, v := range r {
		out[c.rightName(k)] = cloneValue(v)
	}
	if j < 0 {
		out[IndexRight] = nil
	} else {
		out[IndexRight] = float64(j)
	}
	return out
}

// FilterIntersects keeps the rows whose geometry intersects g.
func FilterIntersects(s *Store, g orb.Geometry) *Store {
	idx := newIndex(s.rows)
	var out []Row
	for _, i := range idx.candidates(g) {
		if Intersects(s.rows[i].Geometry, g) {
			out = append(out, s.rows[i].clone())
		}
	}
	return newOwned(s.crs, out)
}

// spatialIndex is an R-tree over row bounding boxes.
type spatialIndex struct {
	tree *rtreego.Rtree
}

type indexedRow struct {
	i    int
	rect rtreego.Rect
}

func (r *indexedRow) Bounds() rtreego.Rect { return r.rect }

func newIndex(rows []Row) *spatialIndex {
	tree := rtreego.NewTree(2, 25, 50)
	for i, r := range rows {
		if IsEmpty(r.Geometry) {
			continue
		}
		rect, ok := rectFor(r.Geometry.Bound())
		if !ok {
			continue
		}
		tree.Insert(&indexedRow{i: i, rect: rect})
	}
	return &spatialIndex{tree: tree}
}

// candidates returns the indices of rows whose boxes touch g's box, in
// ascending order.
func (idx *spatialIndex) candidates(g orb.Geometry) []int {
	if IsEmpty(g) || idx.tree.Size() == 0 {
		return nil
	}
	rect, ok := rectFor(g.Bound())
	if !ok {
		return nil
	}
	hits := idx.tree.SearchIntersect(rect)
	out := make([]int, len(hits))
	for k, h := range hits {
		out[k] = h.(*indexedRow).i
	}
	sort.Ints(out)
	return out
}

// rectFor pads b slightly so degenerate and touching boxes still overlap
// in the tree. Exact predicates refine the candidates afterwards.
func rectFor(b orb.Bound) (rtreego.Rect, bool) {
	scale := math.Max(1, math.Max(
		math.Max(math.Abs(b.Min[0]), math.Abs(b.Max[0])),
		math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1]))))
	pad := scale * 1e-9

	origin := rtreego.Point{b.Min[0] - pad, b.Min[1] - pad}
	lengths := []float64{b.Max[0] - b.Min[0] + 2*pad, b.Max[1] - b.Min[1] + 2*pad}
	if !finite(origin[0]) || !finite(origin[1]) || !finite(lengths[0]) || !finite(lengths[1]) {
		return rtreego.Rect{}, false
	}
	rect, err := rtreego.NewRect(origin, lengths)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
