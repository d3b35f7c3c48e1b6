// Package spatial holds the vector and quaternion helpers shared across
// the teleoperation pipeline.
//
// Positions are meters, angles radians. Quaternions follow the gonum
// num/quat convention (Real scalar part, Imag/Jmag/Kmag vector part) and
// every rotation helper expects and returns unit quaternions.
package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a position and orientation in a common frame.
type Pose struct {
	Pos r3.Vec
	Ori quat.Number
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Ori: Identity()}
}

// Identity returns the no-rotation quaternion.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize returns q scaled to unit magnitude. Quaternions too small or
// non-finite to trust collapse to identity.
func Normalize(q quat.Number) quat.Number {
	a := quat.Abs(q)
	if a < 1e-12 || math.IsNaN(a) || math.IsInf(a, 0) {
		return Identity()
	}
	return quat.Scale(1/a, q)
}

// AxisAngle returns the unit quaternion rotating by angle around axis.
// A near-zero axis yields identity.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n < 1e-9 {
		return Identity()
	}
	s, c := math.Sincos(angle / 2)
	u := r3.Scale(1/n, axis)
	return quat.Number{Real: c, Imag: s * u.X, Jmag: s * u.Y, Kmag: s * u.Z}
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// Dot returns the 4-component dot product of two quaternions.
func Dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Slerp spherically interpolates from a to b along the shorter arc.
// Nearly aligned inputs fall back to a normalized linear blend.
func Slerp(a, b quat.Number, t float64) quat.Number {
	dot := Dot(a, b)
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return Normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}
	theta := math.Acos(math.Min(dot, 1))
	sin := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sin
	wb := math.Sin(t*theta) / sin
	return Normalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

// AngleBetween returns the absolute angle of the rotation taking a to b,
// in [0, pi].
func AngleBetween(a, b quat.Number) float64 {
	d := quat.Mul(b, quat.Conj(a))
	mag := quat.Abs(d)
	if mag < 1e-12 {
		return 0
	}
	w := math.Min(math.Abs(d.Real)/mag, 1)
	return 2 * math.Acos(w)
}

// SignedAngleAbout returns the angle from a to b measured around axis,
// with both vectors projected onto the plane normal to axis. Degenerate
// projections yield 0.
func SignedAngleAbout(a, b, axis r3.Vec) float64 {
	n := r3.Norm(axis)
	if n < 1e-9 {
		return 0
	}
	u := r3.Scale(1/n, axis)
	ap := r3.Sub(a, r3.Scale(r3.Dot(a, u), u))
	bp := r3.Sub(b, r3.Scale(r3.Dot(b, u), u))
	if r3.Norm(ap) < 1e-9 || r3.Norm(bp) < 1e-9 {
		return 0
	}
	return math.Atan2(r3.Dot(u, r3.Cross(ap, bp)), r3.Dot(ap, bp))
}

// MirrorX reflects p across the x=0 plane. Applying it twice returns the
// original pose.
func MirrorX(p Pose) Pose {
	return Pose{
		Pos: r3.Vec{X: -p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z},
		Ori: quat.Number{
			Real: p.Ori.Real,
			Imag: p.Ori.Imag,
			Jmag: -p.Ori.Jmag,
			Kmag: -p.Ori.Kmag,
		},
	}
}

// MirrorXVec reflects a point across the x=0 plane.
func MirrorXVec(v r3.Vec) r3.Vec {
	return r3.Vec{X: -v.X, Y: v.Y, Z: v.Z}
}

// Finite reports whether every component of v is a finite number.
func Finite(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// FiniteQuat reports whether every component of q is a finite number.
func FiniteQuat(q quat.Number) bool {
	return finite(q.Real) && finite(q.Imag) && finite(q.Jmag) && finite(q.Kmag)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
