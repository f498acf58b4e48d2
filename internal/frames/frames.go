// Package frames converts pose samples from the tracking source's coordinate
// convention into the engine world convention. The conversion is two constant
// change-of-basis matrices around the source pose matrix:
//
//	worldFromEngineCamera = worldFromSourceOrigin * sourcePose * deviceFromEngineCamera
//
// Pure matrix algebra; assumes well-formed rotations (orthonormal, det +1).
package frames

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sitetrace/extension/pkg/core"
	"github.com/sitetrace/extension/pkg/spatial"
)

// worldFromSourceOrigin swaps the Y and Z axes to bring the source's
// vertical-axis convention onto the engine's Y-up world.
var worldFromSourceOrigin = mat.NewDense(4, 4, []float64{
	1, 0, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 0,
	0, 0, 0, 1,
})

// deviceFromEngineCamera flips the camera forward axis so the engine camera
// looks down +Z.
var deviceFromEngineCamera = mat.NewDense(4, 4, []float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, -1, 0,
	0, 0, 0, 1,
})

// Matrix returns the engine-world transform of the engine camera for the
// given source pose sample.
func Matrix(s core.PoseSample) *mat.Dense {
	pose := spatial.PoseMatrix(s.Orientation, s.Translation)
	return spatial.Mul(spatial.Mul(worldFromSourceOrigin, pose), deviceFromEngineCamera)
}

// Convert returns the engine-world position and rotation for the given
// source pose sample. The rotation is rebuilt from the transformed forward
// and up basis vectors.
func Convert(s core.PoseSample) (r3.Vector, quat.Number) {
	m := Matrix(s)
	return spatial.TranslationOf(m), spatial.RotationOf(m)
}

// Matches reports whether a sample relates the coordinate frames the consumer
// asked for. Samples for any other pair must be ignored.
func Matches(s core.PoseSample, want core.FramePair) bool {
	return s.Frames == want
}
