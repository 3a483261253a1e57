package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/flatgeobuf"
	"github.com/tingold/geopipe/pipeline"
	"github.com/tingold/geopipe/vector"
)

func newVectorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Vector pipeline commands",
	}
	cmd.AddCommand(
		vectorStatsCmd(a),
		vectorConvertCmd(a),
		vectorReprojectCmd(a),
		vectorBufferCmd(a),
		vectorJoinCmd(a),
	)
	return cmd
}

// vectorInput reads GeoJSON, FlatGeobuf or Shapefile inputs.
type vectorInput struct {
	sourceCRS string
	bbox      string
	clip      bool
}

func (in *vectorInput) flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.sourceCRS, "source-crs", crs.WGS84.String(), "CRS of shapefile inputs")
	cmd.Flags().StringVar(&in.bbox, "bbox", "", "minx,miny,maxx,maxy: keep only features intersecting the box")
	cmd.Flags().BoolVar(&in.clip, "clip", false, "cut geometries to --bbox")
}

// read ingests path. --bbox is given in the input's own CRS: FlatGeobuf
// inputs are searched through their index, other inputs are filtered after
// decoding, and --clip cuts to the box, all before any reprojection to
// --target-crs.
func (in *vectorInput) read(p *pipeline.VectorPipeline, path string) (*vector.Store, error) {
	if in.bbox == "" {
		if in.clip {
			return nil, fmt.Errorf("--clip needs --bbox")
		}
		return in.ingest(p, path, orb.Bound{})
	}
	b, err := parseBound(in.bbox)
	if err != nil {
		return nil, err
	}

	src := p.WithoutTarget()
	s, err := in.ingest(src, path, b)
	if err != nil {
		return nil, err
	}
	if in.clip {
		s = src.Clip(s, b)
	}
	if t := p.Target(); !t.IsZero() && s.CRS() != t {
		return p.Reproject(s, t)
	}
	return s, nil
}

func (in *vectorInput) ingest(p *pipeline.VectorPipeline, path string, b orb.Bound) (*vector.Store, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		id, err := crs.Parse(in.sourceCRS)
		if err != nil {
			return nil, err
		}
		s, err := p.IngestShapefile(path, id)
		if err != nil || in.bbox == "" {
			return s, err
		}
		return p.Filter(s, b.ToPolygon()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case in.bbox == "":
		return p.Ingest(data)
	case flatgeobuf.IsFlatGeobuf(data):
		return p.IngestWithin(data, b)
	}
	s, err := p.Ingest(data)
	if err != nil {
		return nil, err
	}
	return p.Filter(s, b.ToPolygon()), nil
}

func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

type vectorOutput struct {
	path   string
	format string
	name   string
}

func (o *vectorOutput) flags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "out", "o", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&o.format, "format", "", "geojson or flatgeobuf, by default from the output extension")
	cmd.Flags().StringVar(&o.name, "layer", "", "FlatGeobuf layer name")
}

func (o *vectorOutput) write(cmd *cobra.Command, p *pipeline.VectorPipeline, s *vector.Store) error {
	format := o.format
	if format == "" {
		format = "geojson"
		if strings.EqualFold(filepath.Ext(o.path), ".fgb") {
			format = "flatgeobuf"
		}
	}

	var data []byte
	switch format {
	case "geojson":
		b, err := p.ToInterchange(s)
		if err != nil {
			return err
		}
		data = b
	case "flatgeobuf":
		opts := flatgeobuf.DefaultOptions()
		opts.Name = o.name
		var buf bytes.Buffer
		if err := p.ToFlatGeobuf(&buf, s, opts); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unknown vector format %q", format)
	}
	return writeOutput(cmd.OutOrStdout(), o.path, data)
}

func vectorStatsCmd(a *app) *cobra.Command {
	var in vectorInput
	cmd := &cobra.Command{
		Use:   "stats FILE",
		Short: "Print feature count, area and bounds as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.vectorPipeline()
			if err != nil {
				return err
			}
			s, err := in.read(p, args[0])
			if err != nil {
				return err
			}

			st := p.Statistics(s)
			report := map[string]any{
				"feature_count": st.FeatureCount,
				"total_area":    st.TotalArea,
				"mean_area":     st.MeanArea,
				"crs":           st.CRS.String(),
			}
			if st.FeatureCount > 0 {
				report["bounds"] = []float64{st.Bounds.Min[0], st.Bounds.Min[1], st.Bounds.Max[0], st.Bounds.Max[1]}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	in.flags(cmd)
	return cmd
}

func vectorConvertCmd(a *app) *cobra.Command {
	var (
		in  vectorInput
		out vectorOutput
	)
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert between GeoJSON, FlatGeobuf and Shapefile inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.vectorPipeline()
			if err != nil {
				return err
			}
			s, err := in.read(p, args[0])
			if err != nil {
				return err
			}
			return out.write(cmd, p, s)
		},
	}
	in.flags(cmd)
	out.flags(cmd)
	return cmd
}

func vectorReprojectCmd(a *app) *cobra.Command {
	var (
		in  vectorInput
		out vectorOutput
		dst string
	)
	cmd := &cobra.Command{
		Use:   "reproject FILE",
		Short: "Transform every coordinate into another CRS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := crs.Parse(dst)
			if err != nil {
				return err
			}
			p, err := a.vectorPipeline()
			if err != nil {
				return err
			}
			s, err := in.read(p, args[0])
			if err != nil {
				return err
			}
			s, err = p.Reproject(s, id)
			if err != nil {
				return err
			}
			return out.write(cmd, p, s)
		},
	}
	cmd.Flags().StringVar(&dst, "crs", "", "destination CRS, e.g. EPSG:32633")
	_ = cmd.MarkFlagRequired("crs")
	in.flags(cmd)
	out.flags(cmd)
	return cmd
}

func vectorBufferCmd(a *app) *cobra.Command {
	var (
		in       vectorInput
		out      vectorOutput
		distance float64
	)
	cmd := &cobra.Command{
		Use:   "buffer FILE",
		Short: "Dilate or erode geometries by a distance in CRS units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.vectorPipeline()
			if err != nil {
				return err
			}
			s, err := in.read(p, args[0])
			if err != nil {
				return err
			}
			s, err = p.Buffer(s, distance)
			if err != nil {
				return err
			}
			return out.write(cmd, p, s)
		},
	}
	cmd.Flags().Float64VarP(&distance, "distance", "d", 0, "buffer distance, negative erodes")
	in.flags(cmd)
	out.flags(cmd)
	return cmd
}

func vectorJoinCmd(a *app) *cobra.Command {
	var (
		in   vectorInput
		out  vectorOutput
		mode string
	)
	cmd := &cobra.Command{
		Use:   "join LEFT RIGHT",
		Short: "Attach attributes of intersecting right features to left features",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := vector.ParseJoinMode(mode)
			if err != nil {
				return err
			}
			p, err := a.vectorPipeline()
			if err != nil {
				return err
			}
			left, err := in.read(p, args[0])
			if err != nil {
				return err
			}
			right, err := in.read(p, args[1])
			if err != nil {
				return err
			}
			s, err := p.SpatialJoin(left, right, m)
			if err != nil {
				return err
			}
			return out.write(cmd, p, s)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", vector.JoinInner.String(), "inner or left")
	in.flags(cmd)
	out.flags(cmd)
	return cmd
}
