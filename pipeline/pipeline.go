// Package pipeline orchestrates ingestion and transforms over raster and
// vector stores. Pipelines hold configuration, a logger and a metrics
// recorder; every operation takes immutable stores and returns new ones.
package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tingold/geopipe/internal/metrics"
)

const (
	pipelineRaster = "raster"
	pipelineVector = "vector"
)

// instrument is shared by both pipelines.
type instrument struct {
	name    string
	log     zerolog.Logger
	metrics *metrics.Recorder
}

// finish records an operation and logs its outcome. fields adds
// operation-specific context to the success entry.
func (in instrument) finish(op string, start time.Time, err error, fields func(*zerolog.Event)) {
	in.metrics.Observe(in.name, op, start, err)

	if err != nil {
		in.log.Error().Err(err).Str("op", op).Dur("took", time.Since(start)).Msg("operation failed")
		return
	}
	ev := in.log.Debug().Str("op", op).Dur("took", time.Since(start))
	if fields != nil && ev.Enabled() {
		fields(ev)
	}
	ev.Msg("operation done")
}
