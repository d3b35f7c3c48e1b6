// Package filter provides the smoothing primitives used by the
// teleoperation pipeline: exponential filters for scalars, vectors and
// orientations, a spring-damper position tracker, and a weighted moving
// average over fixed windows.
//
// All filters share the same lifecycle: the first sample after
// construction or Reset is returned unchanged, so a re-acquired signal
// snaps to its new value instead of interpolating from stale state.
package filter

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/spatial"
)

// Exp is a first-order exponential filter over a scalar.
type Exp struct {
	alpha  float64
	value  float64
	primed bool
}

// NewExp returns an exponential filter with smoothing factor alpha in
// (0, 1]. Higher alpha follows the input more closely; out-of-range
// values collapse to 1 (passthrough).
func NewExp(alpha float64) *Exp {
	return &Exp{alpha: clampAlpha(alpha)}
}

// Update feeds one sample and returns the filtered value.
func (f *Exp) Update(x float64) float64 {
	if !f.primed {
		f.value = x
		f.primed = true
		return x
	}
	f.value += f.alpha * (x - f.value)
	return f.value
}

// Value returns the last filtered value.
func (f *Exp) Value() float64 { return f.value }

// Reset clears the filter; the next sample is returned unchanged.
func (f *Exp) Reset() {
	f.primed = false
	f.value = 0
}

// VecExp is a first-order exponential filter over a 3-vector.
type VecExp struct {
	alpha  float64
	value  r3.Vec
	primed bool
}

// NewVecExp returns a vector exponential filter with smoothing factor
// alpha in (0, 1].
func NewVecExp(alpha float64) *VecExp {
	return &VecExp{alpha: clampAlpha(alpha)}
}

// Update feeds one sample and returns the filtered vector.
func (f *VecExp) Update(x r3.Vec) r3.Vec {
	if !f.primed {
		f.value = x
		f.primed = true
		return x
	}
	f.value = r3.Add(f.value, r3.Scale(f.alpha, r3.Sub(x, f.value)))
	return f.value
}

// Value returns the last filtered vector.
func (f *VecExp) Value() r3.Vec { return f.value }

// Reset clears the filter; the next sample is returned unchanged.
func (f *VecExp) Reset() {
	f.primed = false
	f.value = r3.Vec{}
}

// QuatExp smooths an orientation stream by spherical interpolation
// toward each new sample.
type QuatExp struct {
	alpha  float64
	value  quat.Number
	primed bool
}

// NewQuatExp returns an orientation filter with smoothing factor alpha
// in (0, 1].
func NewQuatExp(alpha float64) *QuatExp {
	return &QuatExp{alpha: clampAlpha(alpha), value: spatial.Identity()}
}

// Update feeds one sample and returns the filtered orientation. Inputs
// are normalized; the output is always a unit quaternion.
func (f *QuatExp) Update(x quat.Number) quat.Number {
	x = spatial.Normalize(x)
	if !f.primed {
		f.value = x
		f.primed = true
		return x
	}
	f.value = spatial.Slerp(f.value, x, f.alpha)
	return f.value
}

// Value returns the last filtered orientation.
func (f *QuatExp) Value() quat.Number { return f.value }

// Reset clears the filter; the next sample is returned unchanged.
func (f *QuatExp) Reset() {
	f.primed = false
	f.value = spatial.Identity()
}

func clampAlpha(a float64) float64 {
	if a <= 0 || a > 1 || math.IsNaN(a) {
		return 1
	}
	return a
}
