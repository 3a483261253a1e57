package crs

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

// Projection converts between a coordinate system and WGS84 longitude/latitude.
type Projection interface {
	// ToWGS84 converts native coordinates to longitude/latitude in degrees.
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts longitude/latitude in degrees to native coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// Geographic reports whether native units are degrees.
	Geographic() bool
}

// Lookup returns the projection for a known identifier.
func Lookup(id ID) (Projection, bool) {
	return lookup(id)
}

func lookup(id ID) (Projection, bool) {
	if id.Authority != AuthorityEPSG {
		return nil, false
	}

	switch {
	case id.Code == 4326:
		return geographic{}, true
	case id.Code == 3857:
		return webMercator{}, true
	case id.Code >= 32601 && id.Code <= 32660:
		return newUTM(id.Code-32600, true), true
	case id.Code >= 32701 && id.Code <= 32760:
		return newUTM(id.Code-32700, false), true
	}
	return nil, false
}

// geographic is WGS84 itself.
type geographic struct{}

func (geographic) ToWGS84(x, y float64) (float64, float64) { return x, y }
func (geographic) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }
func (geographic) Geographic() bool { return true }

// webMercator is the spherical pseudo-mercator of most web maps.
type webMercator struct{}

func (webMercator) ToWGS84(x, y float64) (float64, float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}

func (webMercator) FromWGS84(lon, lat float64) (float64, float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p[0], p[1]
}

func (webMercator) Geographic() bool { return false }

// utm is a WGS84 UTM zone. Both directions keep the ellipsoidal height at
// zero.
type utm struct {
	fwd, inv func(a, b, c float64) (float64, float64, float64)
}

func newUTM(zone int, north bool) utm {
	z := wgs84.UTM(float64(zone), north)
	return utm{
		fwd: wgs84.LonLat().To(z),
		inv: z.To(wgs84.LonLat()),
	}
}

func (utm) Geographic() bool { return false }

func (u utm) FromWGS84(lon, lat float64) (float64, float64) {
	x, y, _ := u.fwd(lon, lat, 0)
	return x, y
}

func (u utm) ToWGS84(x, y float64) (float64, float64) {
	lon, lat, _ := u.inv(x, y, 0)
	return lon, lat
}
