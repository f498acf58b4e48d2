package geo

import (
	"fmt"

	"github.com/golang/geo/r3"
	geom "github.com/peterstace/simplefeatures/geom"
)

// TrailLineString projects a sequence of world positions into a 2D map
// linestring for export alongside the session trail.
func TrailLineString(r *Reference, points []r3.Vector) (geom.LineString, error) {
	if !r.Enabled() {
		return geom.LineString{}, fmt.Errorf("site is not georeferenced")
	}
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("trail must have at least 2 points, got %d", len(points))
	}

	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		pt, _ := r.ProjectWorld(p)
		coord, ok := pt.Coordinates()
		if !ok {
			return geom.LineString{}, fmt.Errorf("failed to project trail point")
		}
		flatCoords = append(flatCoords, coord.XY.X, coord.XY.Y)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq), nil
}
