// Package hand defines the tracked hand model: joint naming, per-frame
// joint poses, and the retargeting of a 5-finger human hand onto the
// 3-finger effector shape.
package hand

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/spatial"
)

// Side identifies which hand a frame or pipeline belongs to.
type Side string

// Hand sides.
const (
	Left  Side = "left"
	Right Side = "right"
)

// Sign returns +1 for the right side and -1 for the left, the
// convention used when mirroring lateral quantities.
func (s Side) Sign() float64 {
	if s == Left {
		return -1
	}
	return 1
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

// Sides returns both sides in fixed order.
func Sides() []Side {
	return []Side{Left, Right}
}

// JointName identifies a tracked joint in the hand.
type JointName string

// The 25 joints a full hand tracker reports: the wrist, four thumb
// joints, and five joints for each finger.
const (
	Wrist JointName = "wrist"

	ThumbMetacarpal JointName = "thumb_metacarpal"
	ThumbProximal   JointName = "thumb_proximal"
	ThumbDistal     JointName = "thumb_distal"
	ThumbTip        JointName = "thumb_tip"

	IndexMetacarpal   JointName = "index_metacarpal"
	IndexProximal     JointName = "index_proximal"
	IndexIntermediate JointName = "index_intermediate"
	IndexDistal       JointName = "index_distal"
	IndexTip          JointName = "index_tip"

	MiddleMetacarpal   JointName = "middle_metacarpal"
	MiddleProximal     JointName = "middle_proximal"
	MiddleIntermediate JointName = "middle_intermediate"
	MiddleDistal       JointName = "middle_distal"
	MiddleTip          JointName = "middle_tip"

	RingMetacarpal   JointName = "ring_metacarpal"
	RingProximal     JointName = "ring_proximal"
	RingIntermediate JointName = "ring_intermediate"
	RingDistal       JointName = "ring_distal"
	RingTip          JointName = "ring_tip"

	PinkyMetacarpal   JointName = "pinky_metacarpal"
	PinkyProximal     JointName = "pinky_proximal"
	PinkyIntermediate JointName = "pinky_intermediate"
	PinkyDistal       JointName = "pinky_distal"
	PinkyTip          JointName = "pinky_tip"
)

// AllJoints returns all joint names in tracker order.
func AllJoints() []JointName {
	return []JointName{
		Wrist,
		ThumbMetacarpal, ThumbProximal, ThumbDistal, ThumbTip,
		IndexMetacarpal, IndexProximal, IndexIntermediate, IndexDistal, IndexTip,
		MiddleMetacarpal, MiddleProximal, MiddleIntermediate, MiddleDistal, MiddleTip,
		RingMetacarpal, RingProximal, RingIntermediate, RingDistal, RingTip,
		PinkyMetacarpal, PinkyProximal, PinkyIntermediate, PinkyDistal, PinkyTip,
	}
}

// Finger identifies one digit.
type Finger string

// Fingers.
const (
	FingerThumb  Finger = "thumb"
	FingerIndex  Finger = "index"
	FingerMiddle Finger = "middle"
	FingerRing   Finger = "ring"
	FingerPinky  Finger = "pinky"
)

// Fingers returns all fingers in tracker order.
func Fingers() []Finger {
	return []Finger{FingerThumb, FingerIndex, FingerMiddle, FingerRing, FingerPinky}
}

// FingerChain returns the finger's joints base to tip. The thumb has
// four joints, the other fingers five.
func FingerChain(f Finger) []JointName {
	switch f {
	case FingerThumb:
		return []JointName{ThumbMetacarpal, ThumbProximal, ThumbDistal, ThumbTip}
	case FingerIndex:
		return []JointName{IndexMetacarpal, IndexProximal, IndexIntermediate, IndexDistal, IndexTip}
	case FingerMiddle:
		return []JointName{MiddleMetacarpal, MiddleProximal, MiddleIntermediate, MiddleDistal, MiddleTip}
	case FingerRing:
		return []JointName{RingMetacarpal, RingProximal, RingIntermediate, RingDistal, RingTip}
	case FingerPinky:
		return []JointName{PinkyMetacarpal, PinkyProximal, PinkyIntermediate, PinkyDistal, PinkyTip}
	}
	return nil
}

// Frame is one tracked snapshot of a single hand. Joints is sparse: a
// tracker may omit any joint it failed to see, including the wrist when
// the hand left the view.
type Frame struct {
	Side   Side
	Joints map[JointName]spatial.Pose
}

// NewFrame returns an empty frame for the given side.
func NewFrame(side Side) Frame {
	return Frame{
		Side:   side,
		Joints: make(map[JointName]spatial.Pose, len(AllJoints())),
	}
}

// Joint looks up one joint pose.
func (f Frame) Joint(name JointName) (spatial.Pose, bool) {
	p, ok := f.Joints[name]
	return p, ok
}

// Position looks up one joint position.
func (f Frame) Position(name JointName) (r3.Vec, bool) {
	p, ok := f.Joints[name]
	return p.Pos, ok
}

// Tracked reports whether the wrist was seen, the minimum for the frame
// to drive an arm.
func (f Frame) Tracked() bool {
	_, ok := f.Joints[Wrist]
	return ok
}

// Mirrored returns a copy of the frame reflected across the x=0 plane
// and tagged with the opposite side.
func (f Frame) Mirrored() Frame {
	m := NewFrame(f.Side.Other())
	for name, p := range f.Joints {
		m.Joints[name] = spatial.MirrorX(p)
	}
	return m
}
