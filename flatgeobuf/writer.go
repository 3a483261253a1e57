package flatgeobuf

import (
	"fmt"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/vector"
)

// WriteStore writes s to w. Rows whose geometry is empty have no extent to
// index and are skipped. Attributes holding nil are omitted. An empty store
// is written without an index.
func WriteStore(w io.Writer, s *vector.Store, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	rows := make([]vector.Row, 0, s.Len())
	geoms := make([]orb.Geometry, 0, s.Len())
	for _, r := range s.Rows() {
		if vector.IsEmpty(r.Geometry) {
			continue
		}
		rows = append(rows, r)
		geoms = append(geoms, r.Geometry)
	}
	cols := schema(rows)

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(commonType(geoms))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	if len(cols) > 0 {
		hc := make([]*writer.Column, 0, len(cols))
		for _, c := range cols {
			col := writer.NewColumn(builder)
			col.SetName(c.name)
			col.SetTitle(c.name)
			col.SetType(c.typ)
			col.SetNullable(true)
			hc = append(hc, col)
		}
		header.SetColumns(hc)
	}

	if id := s.CRS(); !id.IsZero() {
		c := writer.NewCrs(builder)
		c.SetOrg(id.Authority)
		c.SetCode(int32(id.Code))
		c.SetName(id.String())
		header.SetCrs(c)
	}

	gen := &storeGenerator{rows: rows, cols: cols}
	fw := writer.NewWriter(header, opts.IncludeIndex && len(rows) > 0, gen, nil)
	if _, err := fw.Write(w); err != nil {
		return fmt.Errorf("flatgeobuf: write: %w", err)
	}
	if gen.err != nil {
		return gen.err
	}
	return nil
}

// storeGenerator feeds rows to the writer. The generator interface has no
// error return, so the first failure stops generation and is kept in err.
type storeGenerator struct {
	rows []vector.Row
	cols []column
	next int
	err  error
}

func (g *storeGenerator) Generate() *writer.Feature {
	if g.err != nil || g.next >= len(g.rows) {
		return nil
	}
	r := g.rows[g.next]
	g.next++

	builder := flatbuffers.NewBuilder(1024)
	geom, err := encodeGeometry(r.Geometry, builder)
	if err != nil {
		g.err = err
		return nil
	}
	f := writer.NewFeature(builder)
	f.SetGeometry(geom)

	props, err := encodeProperties(r.Attributes, g.cols)
	if err != nil {
		g.err = fmt.Errorf("flatgeobuf: row %d: %w", g.next-1, err)
		return nil
	}
	if len(props) > 0 {
		f.SetProperties(props)
	}
	return f
}
