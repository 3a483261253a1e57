// Package flatgeobuf reads and writes vector stores in the FlatGeobuf
// container format. The store CRS is carried in the header, attributes are
// written as typed columns and files are written with a packed R-tree index
// by default.
package flatgeobuf

import (
	"bytes"
	"errors"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/crs"
)

// Errors returned by this package. Malformed input is reported with
// geoerr.ErrDecode.
var (
	ErrNoIndex       = errors.New("flatgeobuf: file has no spatial index")
	ErrInvalidColumn = errors.New("flatgeobuf: invalid column value")
)

var magic = []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62}

// IsFlatGeobuf reports whether data starts with the FlatGeobuf magic bytes.
// The patch version in the last magic byte is not checked.
func IsFlatGeobuf(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:len(magic)], magic)
}

// Options configures writing.
type Options struct {
	Name         string // layer name
	Description  string // layer description
	IncludeIndex bool   // write the packed R-tree index
}

// DefaultOptions returns options that write an indexed file.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
	}
}

// ColumnInfo describes an attribute column.
type ColumnInfo struct {
	Name     string
	Type     string // "Bool", "Double", "String", "Json", ...
	Nullable bool
}

// Header is the file metadata.
type Header struct {
	Name          string
	Description   string
	GeometryType  string // "Point", "Polygon", "Unknown", ...
	FeaturesCount uint64
	Envelope      orb.Bound
	HasEnvelope   bool
	CRS           crs.ID // zero when the file declares none
	HasIndex      bool
	Columns       []ColumnInfo
}
