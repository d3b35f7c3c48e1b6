package spatial

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const tolerance = 1e-9

func vecEquals(a, b r3.Vec) bool {
	return math.Abs(a.X-b.X) < tolerance &&
		math.Abs(a.Y-b.Y) < tolerance &&
		math.Abs(a.Z-b.Z) < tolerance
}

func TestAxisAngleRotate(t *testing.T) {
	q := AxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	got := Rotate(q, r3.Vec{X: 1})
	want := r3.Vec{Y: 1}
	if !vecEquals(got, want) {
		t.Errorf("Rotate = %+v, want %+v", got, want)
	}
}

func TestAxisAngleZeroAxis(t *testing.T) {
	q := AxisAngle(r3.Vec{}, 1.5)
	if AngleBetween(q, Identity()) > tolerance {
		t.Errorf("zero axis should yield identity, got %+v", q)
	}
}

func TestAxisAngleUnnormalizedAxis(t *testing.T) {
	a := AxisAngle(r3.Vec{Z: 1}, 0.7)
	b := AxisAngle(r3.Vec{Z: 5}, 0.7)
	if AngleBetween(a, b) > tolerance {
		t.Errorf("axis scale should not matter: %+v vs %+v", a, b)
	}
}

func TestSlerpEndpoints(t *testing.T) {
	a := AxisAngle(r3.Vec{X: 1}, 0.4)
	b := AxisAngle(r3.Vec{Y: 1}, 1.2)

	if d := AngleBetween(Slerp(a, b, 0), a); d > tolerance {
		t.Errorf("Slerp(t=0) differs from a by %v rad", d)
	}
	if d := AngleBetween(Slerp(a, b, 1), b); d > 1e-6 {
		t.Errorf("Slerp(t=1) differs from b by %v rad", d)
	}
}

func TestSlerpMidpoint(t *testing.T) {
	a := Identity()
	b := AxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	mid := Slerp(a, b, 0.5)
	want := AxisAngle(r3.Vec{Z: 1}, math.Pi/4)
	if d := AngleBetween(mid, want); d > 1e-6 {
		t.Errorf("Slerp midpoint differs from 45 deg by %v rad", d)
	}
}

func TestSlerpShortestPath(t *testing.T) {
	a := AxisAngle(r3.Vec{Z: 1}, 0.3)
	b := AxisAngle(r3.Vec{Z: 1}, 0.8)
	// Negating b represents the same rotation; the blend must not take
	// the long way around.
	bNeg := quat.Scale(-1, b)
	mid := Slerp(a, bNeg, 0.5)
	want := AxisAngle(r3.Vec{Z: 1}, 0.55)
	if d := AngleBetween(mid, want); d > 1e-6 {
		t.Errorf("Slerp took the long arc, off by %v rad", d)
	}
}

func TestSlerpUnitOutput(t *testing.T) {
	a := AxisAngle(r3.Vec{X: 1, Y: 0.5}, 0.9)
	b := AxisAngle(r3.Vec{Y: 1, Z: -0.2}, 2.1)
	for _, tt := range []float64{0, 0.25, 0.5, 0.75, 1} {
		q := Slerp(a, b, tt)
		if math.Abs(quat.Abs(q)-1) > 1e-9 {
			t.Errorf("Slerp(t=%v) not unit: |q| = %v", tt, quat.Abs(q))
		}
	}
}

func TestAngleBetween(t *testing.T) {
	a := Identity()
	b := AxisAngle(r3.Vec{Y: 1}, math.Pi/2)
	if d := AngleBetween(a, b); math.Abs(d-math.Pi/2) > tolerance {
		t.Errorf("AngleBetween = %v, want %v", d, math.Pi/2)
	}
	if d := AngleBetween(b, b); d > tolerance {
		t.Errorf("AngleBetween(b, b) = %v, want 0", d)
	}
}

func TestSignedAngleAbout(t *testing.T) {
	x := r3.Vec{X: 1}
	y := r3.Vec{Y: 1}
	z := r3.Vec{Z: 1}

	tests := []struct {
		name    string
		a, b, u r3.Vec
		want    float64
	}{
		{"quarter turn", x, y, z, math.Pi / 2},
		{"reverse quarter turn", y, x, z, -math.Pi / 2},
		{"same direction", x, x, z, 0},
		{"a along axis", z, y, z, 0},
		{"zero axis", x, y, r3.Vec{}, 0},
	}

	for _, tt := range tests {
		got := SignedAngleAbout(tt.a, tt.b, tt.u)
		if math.Abs(got-tt.want) > tolerance {
			t.Errorf("%s: SignedAngleAbout = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMirrorXInvolution(t *testing.T) {
	p := Pose{
		Pos: r3.Vec{X: 0.3, Y: -0.1, Z: 1.2},
		Ori: AxisAngle(r3.Vec{X: 0.2, Y: 1, Z: -0.4}, 1.1),
	}
	back := MirrorX(MirrorX(p))
	if !vecEquals(back.Pos, p.Pos) {
		t.Errorf("double mirror moved position: %+v", back.Pos)
	}
	if d := AngleBetween(back.Ori, p.Ori); d > tolerance {
		t.Errorf("double mirror changed orientation by %v rad", d)
	}
}

func TestMirrorXRotationConsistency(t *testing.T) {
	// Reflecting inputs then rotating must equal rotating then
	// reflecting: M(R v) == R'(M v) with R' the mirrored rotation.
	p := Pose{Ori: AxisAngle(r3.Vec{X: 0.5, Y: 0.3, Z: 0.8}, 0.9)}
	v := r3.Vec{X: 0.2, Y: -0.7, Z: 0.4}

	direct := MirrorXVec(Rotate(p.Ori, v))
	mirrored := Rotate(MirrorX(p).Ori, MirrorXVec(v))
	if !vecEquals(direct, mirrored) {
		t.Errorf("mirrored rotation mismatch: %+v vs %+v", direct, mirrored)
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	for _, q := range []quat.Number{
		{},
		{Real: math.NaN()},
		{Imag: math.Inf(1)},
	} {
		got := Normalize(q)
		if AngleBetween(got, Identity()) > tolerance {
			t.Errorf("Normalize(%+v) = %+v, want identity", q, got)
		}
	}
}
