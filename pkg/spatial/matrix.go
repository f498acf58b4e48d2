package spatial

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// IdentityMatrix returns a new 4x4 identity matrix.
func IdentityMatrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// PoseMatrix builds the homogeneous transform for rotation q followed by
// translation t.
func PoseMatrix(q quat.Number, t r3.Vector) *mat.Dense {
	x, y, z, w := q.Imag, q.Jmag, q.Kmag, q.Real
	m := mat.NewDense(4, 4, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w), t.X,
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w), t.Y,
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y), t.Z,
		0, 0, 0, 1,
	})
	return m
}

// Mul returns a*b as a new 4x4 matrix.
func Mul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// Inverse returns the inverse of a 4x4 transform. Panics if the matrix is
// singular, which cannot happen for well-formed pose matrices.
func Inverse(m mat.Matrix) *mat.Dense {
	var out mat.Dense
	if err := out.Inverse(m); err != nil {
		panic("spatial: singular pose matrix")
	}
	return &out
}

// TranslationOf extracts the translation column of a 4x4 transform.
func TranslationOf(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// UpOf extracts the rotated up basis vector (second column).
func UpOf(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
}

// ForwardOf extracts the rotated forward basis vector (third column).
func ForwardOf(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 2), Y: m.At(1, 2), Z: m.At(2, 2)}
}

// RotationOf derives the rotation of a 4x4 transform from its forward and up
// basis vectors via a look-rotation construction.
func RotationOf(m mat.Matrix) quat.Number {
	return LookRotation(ForwardOf(m), UpOf(m))
}
