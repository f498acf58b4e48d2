// Package spatial provides the vector, quaternion and homogeneous-matrix
// operations shared by the frame converter, the delta-pose integrator and the
// alignment solver. Vectors are golang/geo r3; quaternions are gonum
// num/quat. The engine world convention throughout is right-handed, Y up,
// forward +Z.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Identity is the no-rotation quaternion.
var Identity = quat.Number{Real: 1}

// Up is the world vertical axis.
var Up = r3.Vector{X: 0, Y: 1, Z: 0}

// Forward is the world forward axis.
var Forward = r3.Vector{X: 0, Y: 0, Z: 1}

// Rotate applies the rotation q to v. q must be a unit quaternion.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// FromAxisAngle builds the rotation of angle radians about axis. The axis
// need not be normalized; a zero axis yields the identity.
func FromAxisAngle(axis r3.Vector, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Delta returns the rotation taking prev to next: next = Delta(next, prev) * prev.
func Delta(next, prev quat.Number) quat.Number {
	return quat.Mul(next, quat.Conj(prev))
}

// LookRotation builds the rotation whose forward axis points along forward
// with the given up hint, mirroring the forward/up basis construction used
// when extracting orientation from a pose matrix. Falls back to the identity
// when forward is degenerate.
func LookRotation(forward, up r3.Vector) quat.Number {
	f := forward.Normalize()
	if f.Norm() == 0 {
		return Identity
	}
	r := up.Cross(f)
	if r.Norm() < 1e-12 {
		// forward parallel to up; pick an arbitrary orthogonal right axis
		r = r3.Vector{X: 1, Y: 0, Z: 0}.Cross(f)
		if r.Norm() < 1e-12 {
			r = r3.Vector{X: 0, Y: 0, Z: 1}.Cross(f)
		}
	}
	r = r.Normalize()
	u := f.Cross(r)
	return fromBasis(r, u, f)
}

// fromBasis converts an orthonormal right/up/forward basis (matrix columns)
// to a quaternion via the Shepperd branch selection.
func fromBasis(right, up, forward r3.Vector) quat.Number {
	m00, m01, m02 := right.X, up.X, forward.X
	m10, m11, m12 := right.Y, up.Y, forward.Y
	m20, m21, m22 := right.Z, up.Z, forward.Z

	trace := m00 + m11 + m22
	var q quat.Number
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q.Real = s / 4
		q.Imag = (m21 - m12) / s
		q.Jmag = (m02 - m20) / s
		q.Kmag = (m10 - m01) / s
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q.Real = (m21 - m12) / s
		q.Imag = s / 4
		q.Jmag = (m01 + m10) / s
		q.Kmag = (m02 + m20) / s
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q.Real = (m02 - m20) / s
		q.Imag = (m01 + m10) / s
		q.Jmag = s / 4
		q.Kmag = (m12 + m21) / s
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q.Real = (m10 - m01) / s
		q.Imag = (m02 + m20) / s
		q.Jmag = (m12 + m21) / s
		q.Kmag = s / 4
	}
	return normalize(q)
}

func normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// twistY extracts the rotation about the world vertical from q, using the
// decomposition q = twist * swing. A rotation with no vertical component
// yields the identity twist.
func twistY(q quat.Number) quat.Number {
	t := quat.Number{Real: q.Real, Jmag: q.Jmag}
	n := math.Sqrt(t.Real*t.Real + t.Jmag*t.Jmag)
	if n < 1e-12 {
		return Identity
	}
	return quat.Scale(1/n, t)
}

// Yaw returns the heading component of q in radians about the world vertical.
func Yaw(q quat.Number) float64 {
	t := twistY(q)
	yaw := 2 * math.Atan2(t.Jmag, t.Real)
	// fold into (-pi, pi]
	if yaw > math.Pi {
		yaw -= 2 * math.Pi
	} else if yaw <= -math.Pi {
		yaw += 2 * math.Pi
	}
	return yaw
}

// WithYaw replaces the heading of q with yaw while preserving its pitch and
// roll (the swing component). Used by the clutch to hold yaw during rotation
// pass-through.
func WithYaw(q quat.Number, yaw float64) quat.Number {
	twist := twistY(q)
	swing := quat.Mul(quat.Conj(twist), q)
	return quat.Mul(FromAxisAngle(Up, yaw), swing)
}

// AngleBetween returns the unsigned angle in radians between a and b.
// Zero-length inputs yield zero.
func AngleBetween(a, b r3.Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	c := a.Dot(b) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// Horizontal projects v onto the horizontal plane by zeroing its vertical
// component.
func Horizontal(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.X, Z: v.Z}
}

// ApproxEqual reports whether two vectors agree within tol on every axis.
func ApproxEqual(a, b r3.Vector, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

// QuatApproxEqual reports whether two unit quaternions represent the same
// rotation within tol, accounting for the double cover.
func QuatApproxEqual(a, b quat.Number, tol float64) bool {
	d := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return math.Abs(d) >= 1-tol
}
