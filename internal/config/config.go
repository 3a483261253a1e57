// Package config reads pipeline settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tingold/geopipe/collab"
	"github.com/tingold/geopipe/crs"
)

// Config holds the settings shared by the command line and the pipelines.
// Flags override the values read by FromEnv.
type Config struct {
	TargetCRS       string // empty keeps the source CRS on ingest
	LogLevel        string
	LogConsole      bool
	RedBand         int
	NIRBand         int
	ResampleWorkers int // 0 means GOMAXPROCS
	IngestCache     int // decoded rasters kept in memory, 0 disables
}

// FromEnv reads the GEOPIPE_* variables. Unset or malformed values fall
// back to their defaults and negative worker or cache sizes become zero.
func FromEnv() Config {
	workers := getint("GEOPIPE_RESAMPLE_WORKERS", 0)
	if workers < 0 {
		workers = 0
	}
	cache := getint("GEOPIPE_INGEST_CACHE", 16)
	if cache < 0 {
		cache = 0
	}

	return Config{
		TargetCRS:       getenv("GEOPIPE_TARGET_CRS", ""),
		LogLevel:        getenv("GEOPIPE_LOG_LEVEL", "info"),
		LogConsole:      getbool("GEOPIPE_LOG_CONSOLE", false),
		RedBand:         getint("GEOPIPE_RED_BAND", 3),
		NIRBand:         getint("GEOPIPE_NIR_BAND", 4),
		ResampleWorkers: workers,
		IngestCache:     cache,
	}
}

// Target parses TargetCRS. The zero ID is returned when none is set.
func (c Config) Target() (crs.ID, error) {
	if strings.TrimSpace(c.TargetCRS) == "" {
		return crs.ID{}, nil
	}
	return crs.Parse(c.TargetCRS)
}

// FetchersFromEnv collects the remote data provider credentials.
func FetchersFromEnv() collab.FetcherConfig {
	return collab.FetcherConfig{
		NASAEarthdataKey: getenv("NASA_EARTHDATA_KEY", ""),
		SentinelHubKey:   getenv("SENTINEL_HUB_KEY", ""),
		OpenWeatherKey:   getenv("OPENWEATHER_KEY", ""),
		USGSKey:          getenv("USGS_KEY", ""),
		Timeout:          getduration("GEOPIPE_FETCH_TIMEOUT", 30*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
