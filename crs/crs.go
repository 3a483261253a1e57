// Package crs identifies coordinate reference systems and relates them.
// Every supported system is defined by its conversion to and from WGS84
// longitude/latitude, so any two known systems can be chained through it.
package crs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tingold/geopipe/geoerr"
)

// AuthorityEPSG is the only authority currently resolved.
const AuthorityEPSG = "EPSG"

// ID is a comparable coordinate reference system identifier.
type ID struct {
	Authority string
	Code      int
}

// Common identifiers.
var (
	WGS84       = ID{Authority: AuthorityEPSG, Code: 4326}
	WebMercator = ID{Authority: AuthorityEPSG, Code: 3857}
)

// UTM returns the WGS84 UTM zone identifier (EPSG:326zz or EPSG:327zz).
func UTM(zone int, north bool) ID {
	if north {
		return ID{Authority: AuthorityEPSG, Code: 32600 + zone}
	}
	return ID{Authority: AuthorityEPSG, Code: 32700 + zone}
}

func (id ID) String() string {
	if id.Authority == "" {
		return ""
	}
	return id.Authority + ":" + strconv.Itoa(id.Code)
}

// URN renders the identifier in OGC URN form, as used by the legacy GeoJSON
// named crs member.
func (id ID) URN() string {
	return "urn:ogc:def:crs:" + id.Authority + "::" + strconv.Itoa(id.Code)
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parse resolves an identifier string. Accepted forms are "EPSG:4326",
// "epsg:4326", "4326", "urn:ogc:def:crs:EPSG::4326" and "OGC:CRS84".
func Parse(s string) (ID, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ID{}, fmt.Errorf("crs: empty identifier: %w", geoerr.ErrInvalidCRS)
	}

	upper := strings.ToUpper(raw)
	switch upper {
	case "CRS84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:OGC::CRS84":
		return WGS84, nil
	}

	codeText := upper
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		// version segment is optional: EPSG::4326 or EPSG:9.9.1:4326
		codeText = upper[strings.LastIndex(upper, ":")+1:]
	case strings.HasPrefix(upper, AuthorityEPSG+":"):
		codeText = strings.TrimPrefix(upper, AuthorityEPSG+":")
	}

	code, err := strconv.Atoi(codeText)
	if err != nil {
		return ID{}, fmt.Errorf("crs: %q: %w", s, geoerr.ErrInvalidCRS)
	}

	id := ID{Authority: AuthorityEPSG, Code: canonicalCode(code)}
	if _, ok := lookup(id); !ok {
		return ID{}, fmt.Errorf("crs: %q is not a known system: %w", s, geoerr.ErrInvalidCRS)
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromEPSG returns the identifier for an EPSG code if it is known.
func FromEPSG(code int) (ID, error) {
	id := ID{Authority: AuthorityEPSG, Code: canonicalCode(code)}
	if _, ok := lookup(id); !ok {
		return ID{}, fmt.Errorf("crs: EPSG:%d is not a known system: %w", code, geoerr.ErrInvalidCRS)
	}
	return id, nil
}

// canonicalCode folds deprecated aliases onto their current code.
func canonicalCode(code int) int {
	switch code {
	case 900913, 3785, 102100:
		return 3857
	}
	return code
}
