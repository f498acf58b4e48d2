package core

import "github.com/golang/geo/r3"

// DepthFrame is a decoded depth point cloud for a single capture. Points are
// in the depth camera frame. The slice is owned by the frame; nothing retains
// the transport buffer it was decoded from.
type DepthFrame struct {
	Timestamp float64     `json:"timestamp"`
	Points    []r3.Vector `json:"points"`
}

// DepthHit is the result of fitting a horizontal plane to the point cloud
// under a screen coordinate. Plane holds the equation ax+by+cz+d=0.
type DepthHit struct {
	Point r3.Vector  `json:"point"`
	Plane [4]float64 `json:"plane"`
}
