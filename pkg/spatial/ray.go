package spatial

import "github.com/golang/geo/r3"

// Ray is a half-line used for surface hit-testing.
type Ray struct {
	Origin    r3.Vector `json:"origin"`
	Direction r3.Vector `json:"direction"`
}

// At returns the point t units along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Normalize().Mul(t))
}
