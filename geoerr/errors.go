// Package geoerr defines the error kinds shared by the geopipe packages.
// Operations wrap these sentinels with context; callers match them with
// errors.Is.
package geoerr

import "errors"

var (
	ErrDecode                = errors.New("geopipe: malformed or unsupported input")
	ErrInvalidCRS            = errors.New("geopipe: invalid crs")
	ErrUnsupportedProjection = errors.New("geopipe: unsupported projection")
	ErrCRSMismatch           = errors.New("geopipe: crs mismatch")
	ErrUnsupportedDType      = errors.New("geopipe: unsupported dtype")
	ErrInsufficientBands     = errors.New("geopipe: insufficient bands")
	ErrInvalidDistance       = errors.New("geopipe: invalid distance")
)
