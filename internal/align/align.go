// Package align computes the horizontal-plane similarity transform that maps
// the building model's local frame onto the scanned world frame from two
// corresponding point pairs.
package align

import (
	"errors"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// minSeparation is the smallest horizontal anchor separation accepted, in
// model/world units. Anchors closer than this are degenerate: the scale
// would divide by (near) zero and the rotation axis would be unstable.
const minSeparation = 1e-6

// ErrDegenerateAnchors is returned when the two model points or the two
// world points are horizontally coincident. The calibration flow surfaces it
// as a "try again" request instead of producing a NaN transform.
var ErrDegenerateAnchors = errors.New("align: anchor points are coincident")

// Anchors are the four calibration points, in collection order.
type Anchors struct {
	Model1 r3.Vector
	World1 r3.Vector
	Model2 r3.Vector
	World2 r3.Vector
}

// Result is the derived similarity transform: uniform scale, rotation about
// the near-vertical cross-product axis, and the anchor translation. It is
// immutable once computed; a recalibration builds a new Result.
type Result struct {
	Scale   float64
	Angle   float64   // radians, unsigned angle between the displacement vectors
	Axis    r3.Vector // cross(modelVec, worldVec)
	Anchors Anchors
}

// Solve derives the similarity transform from the anchors. The horizontal
// displacement vectors are compared: scale is their length ratio, the angle
// is the unsigned angle between them, and the rotation axis is their cross
// product. The rotation sense that brings the model vector onto the world
// vector was fixed by the mapping properties (anchor 1 maps exactly, anchor
// 2 within tolerance) rather than assumed from the source convention.
func Solve(a Anchors) (Result, error) {
	modelVec := spatial.Horizontal(a.Model2.Sub(a.Model1))
	worldVec := spatial.Horizontal(a.World2.Sub(a.World1))

	if modelVec.Norm() < minSeparation || worldVec.Norm() < minSeparation {
		return Result{}, ErrDegenerateAnchors
	}

	angle := spatial.AngleBetween(modelVec, worldVec)
	axis := modelVec.Cross(worldVec)

	// Antiparallel displacement vectors have a vanishing cross product. The
	// axis is vertical for any pair of horizontal vectors, so fall back to
	// the world vertical; at a half turn the rotation sense is immaterial.
	if axis.Norm() < minSeparation && angle > 0 {
		axis = spatial.Up
	}

	return Result{
		Scale:   worldVec.Norm() / modelVec.Norm(),
		Angle:   angle,
		Axis:    axis,
		Anchors: a,
	}, nil
}

// Apply maps a model-space point into world space. The transform is applied
// in the calibration order: rotate about model anchor 1, translate model
// anchor 1 onto world anchor 1, then scale about world anchor 1.
func (r Result) Apply(p r3.Vector) r3.Vector {
	rot := spatial.FromAxisAngle(r.Axis, r.Angle)

	// Rotate the model around its first anchor.
	p = r.Anchors.Model1.Add(spatial.Rotate(rot, p.Sub(r.Anchors.Model1)))

	// Translate anchor 1 into place.
	p = p.Add(r.Anchors.World1.Sub(r.Anchors.Model1))

	// Scale about the world anchor.
	return p.Sub(r.Anchors.World1).Mul(r.Scale).Add(r.Anchors.World1)
}

// FromRecord rebuilds the transform from its stored form.
func FromRecord(a core.Alignment) Result {
	return Result{
		Scale: a.Scale,
		Angle: a.Angle,
		Axis:  a.Axis,
		Anchors: Anchors{
			Model1: a.ModelPoint1,
			World1: a.WorldPoint1,
			Model2: a.ModelPoint2,
			World2: a.WorldPoint2,
		},
	}
}

// Record converts the result into the storable alignment form.
func (r Result) Record(sessionID uint, at time.Time) core.Alignment {
	return core.Alignment{
		SessionID:   sessionID,
		Time:        at,
		Scale:       r.Scale,
		Angle:       r.Angle,
		Axis:        r.Axis,
		ModelPoint1: r.Anchors.Model1,
		WorldPoint1: r.Anchors.World1,
		ModelPoint2: r.Anchors.Model2,
		WorldPoint2: r.Anchors.World2,
	}
}
