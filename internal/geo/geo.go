package geo

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/sitetrace/extension/internal/config"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// We always store projected EPSG:3857 coordinates, including for site origins,
// because SQLite has no spatial awareness and we need to interpret point data
// uniformly across backends. Geometry data is stored in the WKB format.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Reference projects site-local world coordinates into EPSG:3857 map
// coordinates around the site's geodetic origin. World +X maps to grid
// east and world -Z to grid north when GridYaw is zero; GridYaw rotates
// the site grid clockwise from north.
type Reference struct {
	enabled          bool
	originX, originY float64
	cosYaw, sinYaw   float64
}

// NewReference builds a projection reference from the geo config.
// A disabled config yields a valid reference that projects nothing.
func NewReference(cfg config.GeoConfig) (*Reference, error) {
	if !cfg.Enabled {
		return &Reference{}, nil
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 || cfg.Longitude < -180 || cfg.Longitude > 180 {
		return nil, ErrInvalidCoordinates
	}

	x, y, err := Coords3857From4326(cfg.Longitude, cfg.Latitude)
	if err != nil {
		return nil, err
	}

	return &Reference{
		enabled: true,
		originX: x,
		originY: y,
		cosYaw:  math.Cos(cfg.GridYaw),
		sinYaw:  math.Sin(cfg.GridYaw),
	}, nil
}

// Enabled reports whether the site is georeferenced.
func (r *Reference) Enabled() bool {
	return r.enabled
}

// Origin returns the projected site origin.
func (r *Reference) Origin() (geom.Point, bool) {
	if !r.enabled {
		return geom.Point{}, false
	}
	return pointXYZ(r.originX, r.originY, 0), true
}

// ProjectWorld maps an aligned world position to projected map coordinates.
// World Y (height) is carried through as the point's Z.
func (r *Reference) ProjectWorld(v r3.Vector) (geom.Point, bool) {
	if !r.enabled {
		return geom.Point{}, false
	}

	east := v.X*r.cosYaw + (-v.Z)*r.sinYaw
	north := -v.X*r.sinYaw + (-v.Z)*r.cosYaw

	return pointXYZ(r.originX+east, r.originY+north, v.Y), true
}

// Coords3857From4326 converts a longitude/latitude pair to EPSG:3857.
func Coords3857From4326(longitude, latitude float64) (x, y float64, err error) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, ErrInvalidCoordinates
	}
	return x, y, nil
}

func pointXYZ(x, y, z float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Z:    z,
		Type: geom.CoordinatesType(geom.DimXYZ),
	})
}
