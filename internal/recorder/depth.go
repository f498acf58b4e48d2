package recorder

import (
	"errors"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

const (
	// maxRayDistance is the largest perpendicular distance from the aim ray
	// to a cloud point still counted as a hit, in meters.
	maxRayDistance = 0.25

	// neighborRadius bounds the cloud region the plane is fitted to.
	neighborRadius = 0.15
)

var (
	// ErrNoDepthData means no depth frame has arrived yet.
	ErrNoDepthData = errors.New("recorder: no depth frame available")

	// ErrNoDepthHit means the ray passed the cloud without coming near any
	// point. The operator re-aims and confirms again.
	ErrNoDepthHit = errors.New("recorder: ray missed the depth cloud")
)

// depthBuffer keeps the most recent depth frame and resolves aim rays
// against it by fitting a horizontal plane to the cloud around the hit.
// Frames arrive on the source goroutine while hit tests run on the frame
// loop, hence the lock.
type depthBuffer struct {
	mu    sync.Mutex
	frame core.DepthFrame
	has   bool
}

// Store replaces the buffered frame. Older frames are never consulted.
func (b *depthBuffer) Store(f core.DepthFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = f
	b.has = true
}

// HitTest finds the cloud point nearest the ray, fits a horizontal plane to
// its neighborhood and returns the ray's intersection with that plane.
func (b *depthBuffer) HitTest(ray spatial.Ray) (core.DepthHit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.has || len(b.frame.Points) == 0 {
		return core.DepthHit{}, ErrNoDepthData
	}

	dir := ray.Direction.Normalize()

	var nearest r3.Vector
	bestDist := maxRayDistance
	found := false
	for _, p := range b.frame.Points {
		t := p.Sub(ray.Origin).Dot(dir)
		if t < 0 {
			continue
		}
		d := p.Sub(ray.At(t)).Norm()
		if d <= bestDist {
			nearest, bestDist = p, d
			found = true
		}
	}
	if !found {
		return core.DepthHit{}, ErrNoDepthHit
	}

	// Average the height of the neighborhood; a floor or table surface is
	// horizontal and single outlier points should not set the plane.
	sumY, n := 0.0, 0
	for _, p := range b.frame.Points {
		if p.Sub(nearest).Norm() <= neighborRadius {
			sumY += p.Y
			n++
		}
	}
	planeY := sumY / float64(n)

	point := r3.Vector{X: nearest.X, Y: planeY, Z: nearest.Z}
	if dir.Y < -1e-6 || dir.Y > 1e-6 {
		if t := (planeY - ray.Origin.Y) / dir.Y; t > 0 {
			point = ray.At(t)
		}
	}

	return core.DepthHit{
		Point: point,
		Plane: [4]float64{0, 1, 0, -planeY},
	}, nil
}
