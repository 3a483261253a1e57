package pipeline

import (
	"bytes"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/flatgeobuf"
	"github.com/tingold/geopipe/interchange"
	"github.com/tingold/geopipe/internal/metrics"
	"github.com/tingold/geopipe/vector"
)

// VectorConfig configures a VectorPipeline.
type VectorConfig struct {
	// Target is applied to every ingested store. Zero keeps the source CRS.
	Target crs.ID
	// QuadrantSegments controls buffer smoothness, zero uses the default.
	QuadrantSegments int
}

// VectorPipeline ingests, transforms and exports vector stores. Every
// operation is logged and, when a recorder is attached, counted and timed.
type VectorPipeline struct {
	instrument
	target crs.ID
	buffer vector.BufferOptions
}

// NewVectorPipeline returns a pipeline for cfg. A nil recorder disables
// metrics.
func NewVectorPipeline(cfg VectorConfig, log zerolog.Logger, m *metrics.Recorder) *VectorPipeline {
	return &VectorPipeline{
		instrument: instrument{name: pipelineVector, log: log, metrics: m},
		target:     cfg.Target,
		buffer:     vector.BufferOptions{QuadrantSegments: cfg.QuadrantSegments},
	}
}

// Target returns the CRS applied on ingest, zero when none is configured.
func (p *VectorPipeline) Target() crs.ID { return p.target }

// WithoutTarget returns a pipeline sharing p's logger and metrics that keeps
// ingested stores in their source CRS.
func (p *VectorPipeline) WithoutTarget() *VectorPipeline {
	out := *p
	out.target = crs.ID{}
	return &out
}

// Ingest decodes a FlatGeobuf file or a GeoJSON feature collection and
// reprojects it to the configured target CRS.
func (p *VectorPipeline) Ingest(data []byte) (s *vector.Store, err error) {
	start := time.Now()
	format := "geojson"
	defer func() {
		p.finish("ingest", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, s).Str("format", format)
		})
	}()

	if flatgeobuf.IsFlatGeobuf(data) {
		format = "flatgeobuf"
		s, err = readFlatGeobuf(data, nil)
	} else {
		s, err = interchange.Decode(data)
	}
	if err != nil {
		return nil, err
	}
	return p.toTarget(s)
}

// IngestWithin reads only the FlatGeobuf features whose extent intersects
// b, using the file's spatial index.
func (p *VectorPipeline) IngestWithin(data []byte, b orb.Bound) (s *vector.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("ingest_within", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, s)
		})
	}()

	s, err = readFlatGeobuf(data, &b)
	if err != nil {
		return nil, err
	}
	return p.toTarget(s)
}

func readFlatGeobuf(data []byte, b *orb.Bound) (*vector.Store, error) {
	r, err := flatgeobuf.NewReaderFromData(data)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if b != nil {
		return r.Search(*b)
	}
	return r.ReadStore()
}

// IngestShapefile reads the .shp/.dbf pair at path. Shapefiles carry no
// machine-readable CRS, so the caller declares it.
func (p *VectorPipeline) IngestShapefile(path string, id crs.ID) (s *vector.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("ingest_shapefile", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, s).Str("path", path)
		})
	}()

	rows, skipped, err := readShapefile(path)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		p.log.Warn().Str("path", path).Int("skipped", skipped).Msg("shapefile has null shapes")
	}
	s, err = vector.New(id, rows)
	if err != nil {
		return nil, err
	}
	return p.toTarget(s)
}

func (p *VectorPipeline) toTarget(s *vector.Store) (*vector.Store, error) {
	if p.target.IsZero() || s.CRS() == p.target {
		return s, nil
	}
	p.log.Info().Stringer("from", s.CRS()).Stringer("to", p.target).Msg("reprojecting vector")
	return vector.Reproject(s, p.target)
}

// Reproject transforms every geometry of s to dst.
func (p *VectorPipeline) Reproject(s *vector.Store, dst crs.ID) (out *vector.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("reproject", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, out).Stringer("from", s.CRS())
		})
	}()
	return vector.Reproject(s, dst)
}

// SpatialJoin joins rows of left to the intersecting rows of right. Both
// stores must share a CRS.
func (p *VectorPipeline) SpatialJoin(left, right *vector.Store, mode vector.JoinMode) (out *vector.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("spatial_join", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, out).Stringer("mode", mode).Int("left", left.Len()).Int("right", right.Len())
		})
	}()
	return vector.Join(left, right, mode)
}

// Buffer dilates or erodes every geometry by distance, in CRS units.
func (p *VectorPipeline) Buffer(s *vector.Store, distance float64) (out *vector.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("buffer", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, out).Float64("distance", distance)
		})
	}()
	return vector.Buffer(s, distance, p.buffer)
}

// Clip cuts every geometry to b and drops rows with nothing left.
func (p *VectorPipeline) Clip(s *vector.Store, b orb.Bound) *vector.Store {
	start := time.Now()
	out := vector.ClipToBound(s, b)
	p.finish("clip", start, nil, func(ev *zerolog.Event) {
		vectorFields(ev, out).Int("dropped", s.Len()-out.Len())
	})
	return out
}

// Filter keeps the rows whose geometry intersects g.
func (p *VectorPipeline) Filter(s *vector.Store, g orb.Geometry) *vector.Store {
	start := time.Now()
	out := vector.FilterIntersects(s, g)
	p.finish("filter", start, nil, func(ev *zerolog.Event) {
		vectorFields(ev, out).Int("dropped", s.Len()-out.Len())
	})
	return out
}

// Statistics summarises s.
func (p *VectorPipeline) Statistics(s *vector.Store) vector.Stats {
	start := time.Now()
	st := vector.Statistics(s)
	p.finish("statistics", start, nil, func(ev *zerolog.Event) {
		ev.Int("features", st.FeatureCount).Float64("total_area", st.TotalArea)
	})
	return st
}

// ToInterchange renders s as a GeoJSON feature collection.
func (p *VectorPipeline) ToInterchange(s *vector.Store) (data []byte, err error) {
	start := time.Now()
	defer func() {
		p.finish("to_interchange", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, s).Int("bytes", len(data))
		})
	}()
	return interchange.Encode(s)
}

// ToFlatGeobuf writes s as an indexed FlatGeobuf file. A nil opts uses
// flatgeobuf.DefaultOptions.
func (p *VectorPipeline) ToFlatGeobuf(w io.Writer, s *vector.Store, opts *flatgeobuf.Options) (err error) {
	start := time.Now()
	var n int
	defer func() {
		p.finish("to_flatgeobuf", start, err, func(ev *zerolog.Event) {
			vectorFields(ev, s).Int("bytes", n)
		})
	}()

	var buf bytes.Buffer
	if err = flatgeobuf.WriteStore(&buf, s, opts); err != nil {
		return err
	}
	n = buf.Len()
	_, err = w.Write(buf.Bytes())
	return err
}

func vectorFields(ev *zerolog.Event, s *vector.Store) *zerolog.Event {
	if s == nil {
		return ev
	}
	return ev.Stringer("crs", s.CRS()).Int("rows", s.Len())
}
