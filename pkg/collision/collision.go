// Package collision reports arm-against-body contact for the safety
// gate, using capsule colliders placed from forward kinematics.
package collision

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/hand"
)

// Contact is the per-tick contact report, one flag per arm.
type Contact struct {
	Left  bool
	Right bool
}

// Any reports whether either arm is in contact.
func (c Contact) Any() bool {
	return c.Left || c.Right
}

// Side returns the contact flag for one arm.
func (c Contact) Side(s hand.Side) bool {
	if s == hand.Left {
		return c.Left
	}
	return c.Right
}

// World answers contact queries against the body and environment. The
// controller pushes fresh arm pivots every tick, steps the world, then
// reads the contact report. Arm-against-arm contact is not reported.
type World interface {
	SetArmPivots(side hand.Side, pivots []r3.Vec)
	Step(dt float64)
	Contacts() Contact
}
