package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/pipeline"
	"github.com/tingold/geopipe/raster"
)

func newRasterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raster",
		Short: "Raster pipeline commands",
	}
	cmd.AddCommand(
		rasterInfoCmd(a),
		rasterReprojectCmd(a),
		rasterNDVICmd(a),
		rasterBandMathCmd(a),
	)
	return cmd
}

type rasterOutput struct {
	path   string
	format string
}

func (o *rasterOutput) flags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "out", "o", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&o.format, "format", string(raster.FormatGeoTIFF), "output format (geotiff, arrow)")
}

func (o *rasterOutput) write(cmd *cobra.Command, s *raster.Store) error {
	data, err := raster.Encode(s, raster.Format(o.format))
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), o.path, data)
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ingestRaster(ctx context.Context, p *pipeline.RasterPipeline, path string) (*raster.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Ingest(ctx, data)
}

func rasterInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print raster georeferencing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.rasterPipeline()
			if err != nil {
				return err
			}
			s, err := ingestRaster(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			b := s.Bounds()
			fmt.Fprintf(w, "crs:       %s\n", s.CRS())
			fmt.Fprintf(w, "size:      %d x %d\n", s.Width(), s.Height())
			fmt.Fprintf(w, "bands:     %d\n", s.BandCount())
			fmt.Fprintf(w, "dtype:     %s\n", s.DType())
			fmt.Fprintf(w, "bounds:    %g %g %g %g\n", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
			fmt.Fprintf(w, "transform: %v\n", s.Transform().Coefficients())
			if nd, ok := s.NoData(); ok {
				fmt.Fprintf(w, "nodata:    %g\n", nd)
			}
			return nil
		},
	}
}

func rasterReprojectCmd(a *app) *cobra.Command {
	var (
		out rasterOutput
		dst string
	)
	cmd := &cobra.Command{
		Use:   "reproject FILE",
		Short: "Resample a raster into another CRS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := crs.Parse(dst)
			if err != nil {
				return err
			}
			p, err := a.rasterPipeline()
			if err != nil {
				return err
			}
			s, err := ingestRaster(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			s, err = p.Reproject(cmd.Context(), s, id)
			if err != nil {
				return err
			}
			return out.write(cmd, s)
		},
	}
	cmd.Flags().StringVar(&dst, "crs", "", "destination CRS, e.g. EPSG:3857")
	_ = cmd.MarkFlagRequired("crs")
	out.flags(cmd)
	return cmd
}

func rasterNDVICmd(a *app) *cobra.Command {
	var out rasterOutput
	cmd := &cobra.Command{
		Use:   "ndvi FILE",
		Short: "Compute the normalized difference vegetation index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.rasterPipeline()
			if err != nil {
				return err
			}
			s, err := ingestRaster(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			s, err = p.NDVI(s)
			if err != nil {
				return err
			}
			return out.write(cmd, s)
		},
	}
	cmd.Flags().IntVar(&a.cfg.RedBand, "red", a.cfg.RedBand, "1-based red band")
	cmd.Flags().IntVar(&a.cfg.NIRBand, "nir", a.cfg.NIRBand, "1-based near-infrared band")
	out.flags(cmd)
	return cmd
}

func rasterBandMathCmd(a *app) *cobra.Command {
	var (
		out    rasterOutput
		opName string
		x, y   int
	)
	cmd := &cobra.Command{
		Use:   "bandmath FILE",
		Short: "Combine two bands pixel by pixel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := raster.ParseOp(opName)
			if err != nil {
				return err
			}
			p, err := a.rasterPipeline()
			if err != nil {
				return err
			}
			s, err := ingestRaster(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			s, err = p.BandMath(s, op, x, y)
			if err != nil {
				return err
			}
			return out.write(cmd, s)
		},
	}
	cmd.Flags().StringVar(&opName, "op", raster.OpNormalizedDifference.String(), "normalized_difference, ratio or difference")
	cmd.Flags().IntVar(&x, "a", 1, "first operand band")
	cmd.Flags().IntVar(&y, "b", 2, "second operand band")
	out.flags(cmd)
	return cmd
}
