// Package kinematics models serial chains of revolute joints and solves
// their inverse kinematics.
//
// Each joint contributes a fixed translation (Offset, expressed in the
// parent frame) followed by a rotation of Angle radians about its fixed
// Axis. Forward kinematics walks base to tip accumulating pose. The
// package ships a damped cyclic coordinate descent solver for full
// chains and an analytic two-bone solver for the shoulder-elbow group.
package kinematics

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/spatial"
)

// Limit is an inclusive joint angle range in radians.
type Limit struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Joint is a single revolute articulation.
type Joint struct {
	Name   string
	Offset r3.Vec // translation from the previous pivot, parent frame
	Axis   r3.Vec // unit rotation axis, parent frame
	Lower  float64
	Upper  float64
	Angle  float64
}

// Clamp forces the joint angle into its limits.
func (j *Joint) Clamp() {
	j.Angle = clamp(j.Angle, j.Lower, j.Upper)
}

// Chain is a serial chain of revolute joints rooted at Base. Tip is the
// end-effector offset past the last joint, in its frame.
type Chain struct {
	Base   spatial.Pose
	Joints []Joint
	Tip    r3.Vec
}

// jointState is one joint's world-frame snapshot during an FK walk.
type jointState struct {
	pivot r3.Vec
	axis  r3.Vec
}

// walk runs forward kinematics for the current angles.
func (c *Chain) walk() ([]jointState, spatial.Pose) {
	pos := c.Base.Pos
	ori := spatial.Normalize(c.Base.Ori)
	states := make([]jointState, len(c.Joints))
	for i := range c.Joints {
		j := &c.Joints[i]
		pos = r3.Add(pos, spatial.Rotate(ori, j.Offset))
		states[i] = jointState{
			pivot: pos,
			axis:  spatial.Rotate(ori, j.Axis),
		}
		ori = spatial.Normalize(quat.Mul(ori, spatial.AxisAngle(j.Axis, j.Angle)))
	}
	ee := spatial.Pose{Pos: r3.Add(pos, spatial.Rotate(ori, c.Tip)), Ori: ori}
	return states, ee
}

// EndEffector returns the end-effector pose for the current angles.
func (c *Chain) EndEffector() spatial.Pose {
	_, ee := c.walk()
	return ee
}

// Pivots returns the world pivot of every joint plus the end effector,
// base to tip. Consecutive pivots bound the arm's links.
func (c *Chain) Pivots() []r3.Vec {
	states, ee := c.walk()
	out := make([]r3.Vec, 0, len(states)+1)
	for _, s := range states {
		out = append(out, s.pivot)
	}
	return append(out, ee.Pos)
}

// RootPivot returns the world position of the first joint pivot.
func (c *Chain) RootPivot() r3.Vec {
	if len(c.Joints) == 0 {
		return c.Base.Pos
	}
	ori := spatial.Normalize(c.Base.Ori)
	return r3.Add(c.Base.Pos, spatial.Rotate(ori, c.Joints[0].Offset))
}

// Reach returns the distance from the root pivot to the tip with every
// link straight.
func (c *Chain) Reach() float64 {
	var sum float64
	for i := 1; i < len(c.Joints); i++ {
		sum += r3.Norm(c.Joints[i].Offset)
	}
	return sum + r3.Norm(c.Tip)
}

// Angles returns a copy of the joint angles in chain order.
func (c *Chain) Angles() []float64 {
	out := make([]float64, len(c.Joints))
	for i := range c.Joints {
		out[i] = c.Joints[i].Angle
	}
	return out
}

// AnglesByName returns the joint angles keyed by joint name.
func (c *Chain) AnglesByName() map[string]float64 {
	out := make(map[string]float64, len(c.Joints))
	for i := range c.Joints {
		out[c.Joints[i].Name] = c.Joints[i].Angle
	}
	return out
}

// SetAngles sets joint angles in chain order, clamping each into its
// limits. Extra values are ignored; missing ones leave the joint as is.
func (c *Chain) SetAngles(angles []float64) {
	n := len(angles)
	if len(c.Joints) < n {
		n = len(c.Joints)
	}
	for i := 0; i < n; i++ {
		c.Joints[i].Angle = angles[i]
		c.Joints[i].Clamp()
	}
}

// ClampAngles forces every joint angle into its limits.
func (c *Chain) ClampAngles() {
	for i := range c.Joints {
		c.Joints[i].Clamp()
	}
}

// TightenLimits narrows joint limits to their intersection with lims.
// An entry can only shrink a joint's range, never widen it; unknown
// names are ignored. A request disjoint from the current range pins the
// joint to its nearest current edge so it can never escape hardware
// bounds. Current angles are re-clamped.
func (c *Chain) TightenLimits(lims map[string]Limit) {
	for i := range c.Joints {
		j := &c.Joints[i]
		l, ok := lims[j.Name]
		if !ok {
			continue
		}
		lo, hi := j.Lower, j.Upper
		if l.Lower > lo {
			lo = l.Lower
		}
		if l.Upper < hi {
			hi = l.Upper
		}
		if lo > hi {
			p := clamp((l.Lower+l.Upper)/2, j.Lower, j.Upper)
			lo, hi = p, p
		}
		j.Lower, j.Upper = lo, hi
		j.Clamp()
	}
}

// Clone returns a deep copy of the chain.
func (c *Chain) Clone() *Chain {
	joints := make([]Joint, len(c.Joints))
	copy(joints, c.Joints)
	return &Chain{Base: c.Base, Joints: joints, Tip: c.Tip}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func smoothstep(t float64) float64 {
	t = clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}
