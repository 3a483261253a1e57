package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tingold/geopipe/collab"
	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/internal/metrics"
	"github.com/tingold/geopipe/raster"
)

// ErrNoFetcher is returned by IngestFrom without an imagery fetcher.
var ErrNoFetcher = errors.New("pipeline: no imagery fetcher")

// SensorBands names the 1-based band indices of a sensor product.
type SensorBands struct {
	Red int
	NIR int
}

// DefaultSensorBands is the layout of 4-band blue, green, red, nir
// products.
var DefaultSensorBands = SensorBands{Red: 3, NIR: 4}

// RasterConfig configures a RasterPipeline.
type RasterConfig struct {
	// Target is applied to every ingested store. Zero keeps the source CRS.
	Target crs.ID
	Bands  SensorBands
	// Fetch holds provider settings for IngestFrom; a positive Timeout
	// bounds each fetch.
	Fetch collab.FetcherConfig
	// Workers bounds concurrent band resampling, zero means GOMAXPROCS.
	Workers int
	// CacheSize is the number of decoded stores kept, zero disables the
	// cache.
	CacheSize int
}

// RasterPipeline ingests, reprojects and combines raster stores. Decoded
// inputs are cached by content hash, and every operation is logged and,
// when a recorder is attached, counted and timed.
type RasterPipeline struct {
	instrument
	target crs.ID
	bands  SensorBands
	opts   raster.Options
	fetch  collab.FetcherConfig
	cache  *lru.Cache[uint64, *raster.Store]
}

// NewRasterPipeline validates cfg. A nil recorder disables metrics.
func NewRasterPipeline(cfg RasterConfig, log zerolog.Logger, m *metrics.Recorder) (*RasterPipeline, error) {
	if cfg.Bands == (SensorBands{}) {
		cfg.Bands = DefaultSensorBands
	}
	if cfg.Bands.Red < 1 || cfg.Bands.NIR < 1 {
		return nil, fmt.Errorf("pipeline: sensor bands %+v: %w", cfg.Bands, raster.ErrInvalidBandIndex)
	}

	p := &RasterPipeline{
		instrument: instrument{name: pipelineRaster, log: log, metrics: m},
		target:     cfg.Target,
		bands:      cfg.Bands,
		opts:       raster.Options{Workers: cfg.Workers},
		fetch:      cfg.Fetch,
	}
	if cfg.CacheSize > 0 {
		c, err := lru.New[uint64, *raster.Store](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("pipeline: ingest cache: %w", err)
		}
		p.cache = c
	}
	return p, nil
}

// Bands returns the configured sensor layout.
func (p *RasterPipeline) Bands() SensorBands { return p.bands }

// Ingest decodes data and reprojects it to the configured target CRS.
// Identical inputs are served from the cache.
func (p *RasterPipeline) Ingest(ctx context.Context, data []byte) (s *raster.Store, err error) {
	start := time.Now()
	cached := false
	defer func() {
		p.finish("ingest", start, err, func(ev *zerolog.Event) {
			rasterFields(ev, s).Bool("cached", cached)
		})
	}()

	key := xxhash.Sum64(data)
	if p.cache != nil {
		if hit, ok := p.cache.Get(key); ok {
			cached = true
			return hit, nil
		}
	}

	s, err = raster.Decode(data)
	if err != nil {
		return nil, err
	}
	if !p.target.IsZero() && s.CRS() != p.target {
		p.log.Info().Stringer("from", s.CRS()).Stringer("to", p.target).Msg("reprojecting raster")
		s, err = raster.Reproject(ctx, s, p.target, p.opts)
		if err != nil {
			return nil, err
		}
	}

	if p.cache != nil {
		p.cache.Add(key, s)
	}
	return s, nil
}

// IngestFrom fetches a scene and ingests it. The fetch is cancelled after
// the configured fetch timeout.
func (p *RasterPipeline) IngestFrom(ctx context.Context, f collab.ImageryFetcher, req collab.ImageryRequest) (*raster.Store, error) {
	if f == nil {
		return nil, ErrNoFetcher
	}
	start := time.Now()
	data, err := p.fetchImagery(ctx, f, req)
	p.finish("fetch", start, err, func(ev *zerolog.Event) {
		ev.Str("provider", string(req.Provider)).Int("bytes", len(data))
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch %s imagery: %w", req.Provider, err)
	}
	return p.Ingest(ctx, data)
}

func (p *RasterPipeline) fetchImagery(ctx context.Context, f collab.ImageryFetcher, req collab.ImageryRequest) ([]byte, error) {
	if p.fetch.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetch.Timeout)
		defer cancel()
	}
	return f.FetchImagery(ctx, req)
}

// Reproject resamples s onto dst.
func (p *RasterPipeline) Reproject(ctx context.Context, s *raster.Store, dst crs.ID) (out *raster.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("reproject", start, err, func(ev *zerolog.Event) {
			rasterFields(ev, out).Stringer("from", s.CRS())
		})
	}()
	return raster.Reproject(ctx, s, dst, p.opts)
}

// BandMath applies op to bands a and b (1-based).
func (p *RasterPipeline) BandMath(s *raster.Store, op raster.Op, a, b int) (out *raster.Store, err error) {
	start := time.Now()
	defer func() {
		p.finish("band_math", start, err, func(ev *zerolog.Event) {
			rasterFields(ev, out).Stringer("band_op", op).Int("a", a).Int("b", b)
		})
	}()
	return raster.BandMath(s, op, a, b)
}

// NDVI is the normalized difference of the configured near-infrared and
// red bands.
func (p *RasterPipeline) NDVI(s *raster.Store) (*raster.Store, error) {
	return p.BandMath(s, raster.OpNormalizedDifference, p.bands.NIR, p.bands.Red)
}

func rasterFields(ev *zerolog.Event, s *raster.Store) *zerolog.Event {
	if s == nil {
		return ev
	}
	return ev.Stringer("crs", s.CRS()).
		Int("width", s.Width()).
		Int("height", s.Height()).
		Int("bands", s.BandCount()).
		Stringer("dtype", s.DType())
}
