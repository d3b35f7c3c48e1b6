package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SolveTwoBone places the middle joint of a two-link chain analytically.
// The bend plane contains root, target, and pole; the joint folds
// toward the pole side. The target distance is clamped into
// [|upperLen-foreLen|, (upperLen+foreLen)*0.999] before solving.
//
// Returns the middle joint position, the interior flex angle (0 fully
// straight), and whether the target was within reach before clamping.
func SolveTwoBone(root, target, pole r3.Vec, upperLen, foreLen float64) (r3.Vec, float64, bool) {
	const margin = 0.999

	if upperLen <= 0 || foreLen <= 0 {
		return root, 0, false
	}

	d := r3.Sub(target, root)
	dist := r3.Norm(d)
	minD := math.Abs(upperLen - foreLen)
	maxD := (upperLen + foreLen) * margin
	reachable := dist >= minD && dist <= maxD

	var dir r3.Vec
	if dist < 1e-9 {
		// Target on the root: fold fully along an arbitrary direction.
		dir = r3.Vec{X: 1}
		reachable = false
	} else {
		dir = r3.Scale(1/dist, d)
	}
	dist = clamp(dist, math.Max(minD, 1e-9), maxD)

	u2 := upperLen * upperLen
	f2 := foreLen * foreLen
	c2 := dist * dist
	flex := math.Pi - math.Acos(clamp((u2+f2-c2)/(2*upperLen*foreLen), -1, 1))
	alpha := math.Acos(clamp((u2+c2-f2)/(2*upperLen*dist), -1, 1))

	n := r3.Cross(dir, r3.Sub(pole, root))
	if r3.Norm(n) < 1e-9 {
		// Pole degenerate with the reach line: fall back to a fixed
		// perpendicular so the solve stays deterministic.
		n = r3.Cross(dir, r3.Vec{Z: 1})
		if r3.Norm(n) < 1e-9 {
			n = r3.Cross(dir, r3.Vec{X: 1})
		}
	}
	n = r3.Scale(1/r3.Norm(n), n)
	bendDir := r3.Cross(n, dir)

	sin, cos := math.Sincos(alpha)
	elbow := r3.Add(root, r3.Add(
		r3.Scale(upperLen*cos, dir),
		r3.Scale(upperLen*sin, bendDir)))
	return elbow, flex, reachable
}
