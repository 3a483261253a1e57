// Package metrics records pipeline operation counts and latencies.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Recorder struct {
	reg      *prometheus.Registry
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New returns a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geopipe_operations_total",
			Help: "Pipeline operations by outcome.",
		}, []string{"pipeline", "op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geopipe_operation_duration_seconds",
			Help:    "Pipeline operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"pipeline", "op"}),
	}
}

// Observe records one operation that began at start. A nil recorder is a
// no-op.
func (r *Recorder) Observe(pipeline, op string, start time.Time, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.ops.WithLabelValues(pipeline, op, outcome).Inc()
	r.duration.WithLabelValues(pipeline, op).Observe(time.Since(start).Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteToTextfile dumps the current values in the text exposition format,
// for the node exporter textfile collector.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
