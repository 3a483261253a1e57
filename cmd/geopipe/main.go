// Command geopipe runs the raster and vector pipelines over local files.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/internal/config"
	"github.com/tingold/geopipe/internal/logger"
	"github.com/tingold/geopipe/internal/metrics"
	"github.com/tingold/geopipe/pipeline"
)

// app is the state shared by all subcommands, built before each run.
type app struct {
	cfg         config.Config
	log         zerolog.Logger
	metrics     *metrics.Recorder
	metricsFile string
	stderr      io.Writer
}

func (a *app) target() (crs.ID, error) {
	return a.cfg.Target()
}

func (a *app) rasterPipeline() (*pipeline.RasterPipeline, error) {
	target, err := a.target()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRasterPipeline(pipeline.RasterConfig{
		Target:    target,
		Bands:     pipeline.SensorBands{Red: a.cfg.RedBand, NIR: a.cfg.NIRBand},
		Fetch:     config.FetchersFromEnv(),
		Workers:   a.cfg.ResampleWorkers,
		CacheSize: a.cfg.IngestCache,
	}, a.log, a.metrics)
}

func (a *app) vectorPipeline() (*pipeline.VectorPipeline, error) {
	target, err := a.target()
	if err != nil {
		return nil, err
	}
	return pipeline.NewVectorPipeline(pipeline.VectorConfig{Target: target}, a.log, a.metrics), nil
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.FromEnv()}

	root := &cobra.Command{
		Use:           "geopipe",
		Short:         "Reproject, combine and summarise raster and vector data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.stderr = cmd.ErrOrStderr()
			a.log = logger.Build(logger.Config{
				Level:     a.cfg.LogLevel,
				Console:   a.cfg.LogConsole,
				Component: cmd.Name(),
			}, a.stderr)
			a.metrics = metrics.New()
			if _, err := a.target(); err != nil {
				return err
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.metricsFile == "" {
				return nil
			}
			return a.metrics.WriteToTextfile(a.metricsFile)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	f.BoolVar(&a.cfg.LogConsole, "log-console", a.cfg.LogConsole, "human readable logs")
	f.StringVar(&a.cfg.TargetCRS, "target-crs", a.cfg.TargetCRS, "reproject every input to this CRS on ingest")
	f.StringVar(&a.metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	root.AddCommand(newRasterCmd(a), newVectorCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
