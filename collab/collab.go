// Package collab defines the boundary to collaborators that live outside the
// pipeline: model inference services and remote data fetchers. The pipeline
// only consumes these interfaces; implementations own transport, retries and
// authentication.
package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// ErrMissingKey is returned by FetcherConfig.Key when a provider has no
// credential configured.
var ErrMissingKey = errors.New("collab: missing api key")

// Detection is one object found by a Detector. Box and Polygon are in pixel
// coordinates of the image the detector was given: x to the right, y down.
type Detection struct {
	Label      string
	Confidence float64
	Box        [4]float64 // minX, minY, maxX, maxY
	Polygon    orb.Polygon
}

// ClassMask assigns a class index to every pixel, row-major.
type ClassMask struct {
	Width, Height int
	Classes       []int32
}

// ChangeMask flags changed pixels between two images, row-major.
type ChangeMask struct {
	Width, Height int
	Changed       []bool
}

// Count returns the number of changed pixels.
func (m ChangeMask) Count() int {
	n := 0
	for _, c := range m.Changed {
		if c {
			n++
		}
	}
	return n
}

type Detector interface {
	Detect(ctx context.Context, img Image, threshold float64) ([]Detection, error)
}

type Segmenter interface {
	Segment(ctx context.Context, img Image) (ClassMask, error)
}

type ChangeDetector interface {
	Diff(ctx context.Context, before, after Image) (ChangeMask, error)
}

// Forecaster predicts the next value of a time series.
type Forecaster interface {
	Forecast(ctx context.Context, series []float64) (float64, error)
}

// Provider names a remote data source.
type Provider string

const (
	ProviderNASAEarthdata Provider = "nasa_earthdata"
	ProviderSentinelHub   Provider = "sentinel_hub"
	ProviderOpenWeather   Provider = "openweather"
	ProviderUSGS          Provider = "usgs"
)

// FetcherConfig carries provider credentials. It is passed explicitly to
// fetcher implementations.
type FetcherConfig struct {
	NASAEarthdataKey string
	SentinelHubKey   string
	OpenWeatherKey   string
	USGSKey          string
	Timeout          time.Duration
}

// Key returns the credential for p.
func (c FetcherConfig) Key(p Provider) (string, error) {
	var k string
	switch p {
	case ProviderNASAEarthdata:
		k = c.NASAEarthdataKey
	case ProviderSentinelHub:
		k = c.SentinelHubKey
	case ProviderOpenWeather:
		k = c.OpenWeatherKey
	case ProviderUSGS:
		k = c.USGSKey
	default:
		return "", fmt.Errorf("collab: unknown provider %q", p)
	}
	if k == "" {
		return "", fmt.Errorf("%s: %w", p, ErrMissingKey)
	}
	return k, nil
}

// ImageryRequest describes a scene to fetch. Date is the acquisition day;
// MaxCloudCover is a percentage and zero means no limit.
type ImageryRequest struct {
	Provider      Provider
	Bounds        orb.Bound
	Date          time.Time
	MaxCloudCover float64
}

// ImageryFetcher delivers raster bytes in a format raster.Decode accepts.
type ImageryFetcher interface {
	FetchImagery(ctx context.Context, req ImageryRequest) ([]byte, error)
}

// Observation is a point weather reading.
type Observation struct {
	Lat, Lon     float64
	Time         time.Time
	TemperatureC float64
	Humidity     float64 // percent
	WindSpeed    float64 // m/s
	Conditions   string
}

// WeatherFetcher returns the observation at a location. A zero date asks
// for current conditions.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64, date time.Time) (Observation, error)
}
