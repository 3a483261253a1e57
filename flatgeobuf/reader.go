package flatgeobuf

import (
	"fmt"
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
	"github.com/tingold/geopipe/vector"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader opens the file at path. The file is memory-mapped.
func NewReader(path string) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("flatgeobuf: open %s: %v: %w", path, err, geoerr.ErrDecode)
	}
	return &Reader{fgb: fgb}, nil
}

// NewReaderFromData creates a reader over data.
func NewReaderFromData(data []byte) (r *Reader, err error) {
	if !IsFlatGeobuf(data) {
		return nil, fmt.Errorf("flatgeobuf: missing magic bytes: %w", geoerr.ErrDecode)
	}
	defer recoverCorrupt(&err)

	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("flatgeobuf: %v: %w", err, geoerr.ErrDecode)
	}
	if fgb.Header() == nil {
		return nil, fmt.Errorf("flatgeobuf: missing header: %w", geoerr.ErrDecode)
	}
	return &Reader{fgb: fgb}, nil
}

// flatbuffers accessors panic on out-of-range offsets in truncated input.
func recoverCorrupt(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("flatgeobuf: corrupt buffer: %v: %w", p, geoerr.ErrDecode)
	}
}

// Header returns the file metadata.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()

	out := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}
	if h.EnvelopeLength() >= 4 {
		out.HasEnvelope = true
		out.Envelope = orb.Bound{
			Min: orb.Point{h.Envelope(0), h.Envelope(1)},
			Max: orb.Point{h.Envelope(2), h.Envelope(3)},
		}
	}
	if id, ok := headerCRS(h); ok {
		out.CRS = id
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			out.Columns = append(out.Columns, ColumnInfo{
				Name:     string(col.Name()),
				Type:     flattypes.EnumNamesColumnType[col.Type()],
				Nullable: col.Nullable(),
			})
		}
	}
	return out
}

// headerCRS reads the declared CRS. A missing organisation means EPSG.
func headerCRS(h *flattypes.Header) (crs.ID, bool) {
	var c flattypes.Crs
	if h.Crs(&c) == nil || c.Code() <= 0 {
		return crs.ID{}, false
	}
	org := string(c.Org())
	if org == "" {
		org = crs.AuthorityEPSG
	}
	return crs.ID{Authority: org, Code: int(c.Code())}, true
}

// ReadStore reads every feature into a store. The store CRS is the header
// CRS, EPSG:4326 when the file declares none. Features are visited through
// the spatial index, so a file with features but no index cannot be read.
func (r *Reader) ReadStore() (*vector.Store, error) {
	h := r.fgb.Header()
	if h.FeaturesCount() > 0 && h.IndexNodeSize() == 0 {
		return nil, fmt.Errorf("flatgeobuf: %d features without index: %w", h.FeaturesCount(), geoerr.ErrDecode)
	}
	everything := orb.Bound{
		Min: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
		Max: orb.Point{math.MaxFloat64, math.MaxFloat64},
	}
	return r.read(h, everything)
}

// Search reads the features whose index boxes intersect b.
func (r *Reader) Search(b orb.Bound) (*vector.Store, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}
	return r.read(h, b)
}

func (r *Reader) read(h *flattypes.Header, b orb.Bound) (s *vector.Store, err error) {
	id, ok := headerCRS(h)
	if !ok {
		id = crs.WGS84
	}
	if _, known := crs.Lookup(id); !known {
		return nil, fmt.Errorf("flatgeobuf: header crs %s: %w", id, geoerr.ErrInvalidCRS)
	}
	if h.FeaturesCount() == 0 {
		return vector.New(id, nil)
	}

	defer recoverCorrupt(&err)

	features, err := r.fgb.Search(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	if err != nil {
		return nil, fmt.Errorf("flatgeobuf: search: %v: %w", err, geoerr.ErrDecode)
	}

	rows := make([]vector.Row, 0, len(features))
	for i, f := range features {
		var g flattypes.Geometry
		if f.Geometry(&g) == nil {
			return nil, fmt.Errorf("flatgeobuf: feature %d has no geometry: %w", i, geoerr.ErrDecode)
		}
		geom, err := decodeGeometry(&g, h.GeometryType())
		if err != nil {
			return nil, err
		}

		raw := make([]byte, f.PropertiesLength())
		for j := range raw {
			raw[j] = byte(f.Properties(j))
		}
		attrs, err := decodeProperties(raw, h)
		if err != nil {
			return nil, err
		}
		rows = append(rows, vector.Row{Geometry: geom, Attributes: attrs})
	}
	return vector.New(id, rows)
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}
