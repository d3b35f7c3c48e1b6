package collision

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/internal/log"
	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/spatial"
)

// DefaultArmRadius is the collider radius around each arm link, meters.
const DefaultArmRadius = 0.035

// Links shorter than this are treated as colocated joints and carry no
// collider.
const minLinkLength = 1e-6

// Capsule is the segment from A to B swept by Radius.
type Capsule struct {
	A      r3.Vec
	B      r3.Vec
	Radius float64
}

// DefaultBodyCapsules models the robot torso column and head. The radii
// leave the arms a few centimeters of clearance at the hanging zero
// pose.
func DefaultBodyCapsules() []Capsule {
	return []Capsule{
		{A: r3.Vec{Z: 0.70}, B: r3.Vec{Z: 1.40}, Radius: 0.12},
		{A: r3.Vec{Z: 1.50}, B: r3.Vec{Z: 1.62}, Radius: 0.10},
	}
}

// CapsuleWorld tests per-side arm link capsules against a fixed set of
// body capsules. It is owned and driven by the controller tick loop and
// is not safe for concurrent use.
type CapsuleWorld struct {
	body    []Capsule
	radius  float64
	arms    map[hand.Side][]Capsule
	contact Contact
	warned  map[string]bool
}

// DefaultCapsuleWorld returns a world with the default body capsules
// and arm radius.
func DefaultCapsuleWorld() *CapsuleWorld {
	return NewCapsuleWorld(nil, 0)
}

// NewCapsuleWorld returns a world with the given body capsules and arm
// link radius. A nil body falls back to DefaultBodyCapsules, a
// non-positive radius to DefaultArmRadius.
func NewCapsuleWorld(body []Capsule, armRadius float64) *CapsuleWorld {
	if body == nil {
		body = DefaultBodyCapsules()
	}
	if armRadius <= 0 {
		armRadius = DefaultArmRadius
	}
	return &CapsuleWorld{
		body:   body,
		radius: armRadius,
		arms:   make(map[hand.Side][]Capsule),
		warned: make(map[string]bool),
	}
}

// SetArmPivots rebuilds one arm's link capsules from consecutive FK
// pivots. Colocated pivots (stacked shoulder and wrist joints) produce
// no collider; a non-finite pivot drops its link and is logged once.
func (w *CapsuleWorld) SetArmPivots(side hand.Side, pivots []r3.Vec) {
	caps := w.arms[side][:0]
	for i := 0; i+1 < len(pivots); i++ {
		a, b := pivots[i], pivots[i+1]
		if !spatial.Finite(a) || !spatial.Finite(b) {
			key := fmt.Sprintf("%s/%d", side, i)
			if !w.warned[key] {
				w.warned[key] = true
				log.Warn("dropping arm link collider, non-finite pivot",
					"side", side, "link", i)
			}
			continue
		}
		if r3.Norm(r3.Sub(b, a)) < minLinkLength {
			continue
		}
		caps = append(caps, Capsule{A: a, B: b, Radius: w.radius})
	}
	w.arms[side] = caps
}

// Step refreshes the contact report. The body capsules are static, so
// dt is ignored.
func (w *CapsuleWorld) Step(dt float64) {
	w.contact = Contact{
		Left:  w.collides(hand.Left),
		Right: w.collides(hand.Right),
	}
}

// Contacts returns the report from the last Step.
func (w *CapsuleWorld) Contacts() Contact {
	return w.contact
}

func (w *CapsuleWorld) collides(side hand.Side) bool {
	for _, a := range w.arms[side] {
		for _, b := range w.body {
			if segSegDist(a.A, a.B, b.A, b.B) < a.Radius+b.Radius {
				return true
			}
		}
	}
	return false
}

// segSegDist returns the closest distance between segments p1q1 and
// p2q2 (Ericson, Real-Time Collision Detection, 5.1.9).
func segSegDist(p1, q1, p2, q2 r3.Vec) float64 {
	d1 := r3.Sub(q1, p1)
	d2 := r3.Sub(q2, p2)
	r := r3.Sub(p1, p2)
	a := r3.Dot(d1, d1)
	e := r3.Dot(d2, d2)
	f := r3.Dot(d2, r)

	const eps = 1e-12
	var s, t float64
	switch {
	case a <= eps && e <= eps:
		return r3.Norm(r)
	case a <= eps:
		t = clamp(f/e, 0, 1)
	default:
		c := r3.Dot(d1, r)
		if e <= eps {
			s = clamp(-c/a, 0, 1)
		} else {
			b := r3.Dot(d1, d2)
			den := a*e - b*b
			if den > eps {
				s = clamp((b*f-c*e)/den, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = clamp((b-c)/a, 0, 1)
			}
		}
	}
	c1 := r3.Add(p1, r3.Scale(s, d1))
	c2 := r3.Add(p2, r3.Scale(t, d2))
	return r3.Norm(r3.Sub(c1, c2))
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
