package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	r := New()
	start := time.Now()

	r.Observe("raster", "ingest", start, nil)
	r.Observe("raster", "ingest", start, nil)
	r.Observe("raster", "ingest", start, errors.New("boom"))
	r.Observe("vector", "buffer", start, nil)

	require.Equal(t, 2.0, testutil.ToFloat64(r.ops.WithLabelValues("raster", "ingest", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.ops.WithLabelValues("raster", "ingest", OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.ops.WithLabelValues("vector", "buffer", OutcomeOK)))
	require.Equal(t, 3, testutil.CollectAndCount(r.ops))
	require.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestObserve_NilRecorder(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() { r.Observe("raster", "ingest", time.Now(), nil) })
}

func TestWriteToTextfile(t *testing.T) {
	r := New()
	r.Observe("vector", "join", time.Now(), nil)

	path := filepath.Join(t.TempDir(), "geopipe.prom")
	require.NoError(t, r.WriteToTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `geopipe_operations_total{op="join",outcome="ok",pipeline="vector"} 1`), string(body))
	require.Contains(t, string(body), "geopipe_operation_duration_seconds_bucket")
}
