package raster

import (
	"bytes"
	"fmt"

	"github.com/tingold/geopipe/geoerr"
)

var (
	arrowStreamMagic = []byte{0xff, 0xff, 0xff, 0xff}
	tiffLittleMagic  = []byte{'I', 'I', 42, 0}
	tiffBigMagic     = []byte{'M', 'M', 0, 42}
)

// Format names a raster container.
type Format string

const (
	FormatArrow   Format = "arrow"
	FormatGeoTIFF Format = "geotiff"
)

// Sniff reports the container format of data.
func Sniff(data []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(data, arrowStreamMagic):
		return FormatArrow, true
	case bytes.HasPrefix(data, tiffLittleMagic), bytes.HasPrefix(data, tiffBigMagic):
		return FormatGeoTIFF, true
	}
	return "", false
}

// Decode parses an Arrow IPC stream or a GeoTIFF into a store.
func Decode(data []byte) (*Store, error) {
	f, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("raster: unrecognised container: %w", geoerr.ErrDecode)
	}
	if f == FormatArrow {
		return decodeArrow(data)
	}
	return decodeGeoTIFF(data)
}

// Encode writes s in format f.
func Encode(s *Store, f Format) ([]byte, error) {
	switch f {
	case FormatArrow:
		return EncodeArrow(s)
	case FormatGeoTIFF:
		return EncodeGeoTIFF(s)
	}
	return nil, fmt.Errorf("raster: unknown format %q", f)
}
