// Package interchange converts vector stores to and from GeoJSON feature
// collections. Coordinates are written in the store CRS, in x/y order, and
// the CRS is declared with the named "crs" member of GeoJSON 2008.
package interchange

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
	"github.com/tingold/geopipe/vector"
)

// DefaultCRS is assumed for documents without a crs member.
var DefaultCRS = crs.WGS84

const crsMember = "crs"

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// Encode renders s as a FeatureCollection, one feature per row in row order.
func Encode(s *vector.Store) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	var member namedCRS
	member.Type = "name"
	member.Properties.Name = s.CRS().URN()
	fc.ExtraMembers = geojson.Properties{crsMember: member}

	for _, r := range s.Rows() {
		f := geojson.NewFeature(r.Geometry)
		f.Properties = geojson.Properties(r.Attributes)
		fc.Append(f)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("interchange: encode: %w", err)
	}
	return data, nil
}

// Decode parses a FeatureCollection. Features without a geometry, or with a
// geometry collection, are rejected.
func Decode(data []byte) (*vector.Store, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("interchange: %v: %w", err, geoerr.ErrDecode)
	}

	id, err := collectionCRS(fc)
	if err != nil {
		return nil, err
	}

	rows := make([]vector.Row, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, fmt.Errorf("interchange: feature %d has no geometry: %w", i, geoerr.ErrDecode)
		}
		rows[i] = vector.Row{Geometry: f.Geometry, Attributes: f.Properties}
	}

	s, err := vector.New(id, rows)
	if err != nil {
		return nil, fmt.Errorf("interchange: %w: %w", geoerr.ErrDecode, err)
	}
	return s, nil
}

func collectionCRS(fc *geojson.FeatureCollection) (crs.ID, error) {
	raw, ok := fc.ExtraMembers[crsMember]
	if !ok || raw == nil {
		return DefaultCRS, nil
	}

	// round trip through json to read the member into its struct
	b, err := json.Marshal(raw)
	if err != nil {
		return crs.ID{}, fmt.Errorf("interchange: crs member: %v: %w", err, geoerr.ErrDecode)
	}
	var member namedCRS
	if err := json.Unmarshal(b, &member); err != nil || member.Type != "name" {
		return crs.ID{}, fmt.Errorf("interchange: crs member must be a named crs: %w", geoerr.ErrInvalidCRS)
	}
	return crs.Parse(member.Properties.Name)
}
