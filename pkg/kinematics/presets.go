package kinematics

import "gonum.org/v1/gonum/spatial/r3"

// Physical link lengths, meters.
const (
	UpperArmLength = 0.25
	ForearmLength  = 0.218
)

// Shoulder pivot placement in the torso frame (X right, Y forward,
// Z up), meters.
const (
	ShoulderOffset = 0.18
	ShoulderHeight = 1.35
)

// Arm joint names, root to tip (matching servo IDs 1-7).
const (
	ShoulderPitch = "shoulder_pitch"
	ShoulderRoll  = "shoulder_roll"
	ShoulderYaw   = "shoulder_yaw"
	ElbowFlex     = "elbow_flex"
	WristRoll     = "wrist_roll"
	WristPitch    = "wrist_pitch"
	WristYaw      = "wrist_yaw"
)

// ArmJointNames returns the arm joint names in chain order.
func ArmJointNames() []string {
	return []string{
		ShoulderPitch,
		ShoulderRoll,
		ShoulderYaw,
		ElbowFlex,
		WristRoll,
		WristPitch,
		WristYaw,
	}
}

// Effector joint names (matching servo IDs 8-14).
const (
	ThumbAbduction     = "thumb_abduction"
	ThumbProximalCurl  = "thumb_proximal_curl"
	ThumbDistalCurl    = "thumb_distal_curl"
	IndexProximalCurl  = "index_proximal_curl"
	IndexDistalCurl    = "index_distal_curl"
	MiddleProximalCurl = "middle_proximal_curl"
	MiddleDistalCurl   = "middle_distal_curl"
)

// HandJointNames returns the effector joint names in servo order.
func HandJointNames() []string {
	return []string{
		ThumbAbduction,
		ThumbProximalCurl,
		ThumbDistalCurl,
		IndexProximalCurl,
		IndexDistalCurl,
		MiddleProximalCurl,
		MiddleDistalCurl,
	}
}

// NewArmChain returns the 7-DOF arm with hardware joint limits. At the
// zero pose the arm hangs straight down (-Z); positive elbow flex bends
// the forearm forward (+Y). The caller places the chain by setting
// Base.
//
// A mirrored chain (the left arm) flips the Y and Z rotation axes,
// which is the reflection across the x=0 plane; limits keep their
// meaning (positive shoulder roll stays "toward the torso") so one
// limit table serves both sides.
func NewArmChain(mirrored bool) *Chain {
	lat := 1.0
	if mirrored {
		lat = -1
	}
	return &Chain{
		Joints: []Joint{
			{Name: ShoulderPitch, Axis: r3.Vec{X: 1}, Lower: -2.6, Upper: 2.6},
			{Name: ShoulderRoll, Axis: r3.Vec{Y: lat}, Lower: -2.3, Upper: 0.35},
			{Name: ShoulderYaw, Axis: r3.Vec{Z: lat}, Lower: -1.7, Upper: 1.7},
			{
				Name:   ElbowFlex,
				Offset: r3.Vec{Z: -UpperArmLength},
				Axis:   r3.Vec{X: 1},
				Lower:  -0.05,
				Upper:  2.75,
			},
			{
				Name:   WristRoll,
				Offset: r3.Vec{Z: -ForearmLength},
				Axis:   r3.Vec{Z: lat},
				Lower:  -1.9,
				Upper:  1.9,
			},
			{Name: WristPitch, Axis: r3.Vec{X: 1}, Lower: -1.25, Upper: 1.25},
			{Name: WristYaw, Axis: r3.Vec{Y: lat}, Lower: -0.9, Upper: 0.9},
		},
	}
}

// DefaultLimitOverrides returns the software envelope tightened on top
// of the hardware table: the elbow stays out of its hyperextension band
// and the shoulder keeps clear of the torso. Thanks to the mirrored
// axis convention the same table serves both arms.
func DefaultLimitOverrides() map[string]Limit {
	return map[string]Limit{
		ElbowFlex:    {Lower: 0.0, Upper: 2.4},
		ShoulderRoll: {Lower: -2.2, Upper: 0.3},
		WristPitch:   {Lower: -1.1, Upper: 1.1},
	}
}

// NewHandJoints returns the 7 effector joints with hardware ranges.
// These joints are commanded directly from the retargeted shape rather
// than positioned by FK, so they carry no offsets or axes. The distal
// curl servos are mounted opposite and run negative.
func NewHandJoints() []Joint {
	return []Joint{
		{Name: ThumbAbduction, Lower: -0.6, Upper: 0.6},
		{Name: ThumbProximalCurl, Lower: -0.1, Upper: 1.6},
		{Name: ThumbDistalCurl, Lower: -1.7, Upper: 0.05},
		{Name: IndexProximalCurl, Lower: -0.1, Upper: 1.7},
		{Name: IndexDistalCurl, Lower: -1.8, Upper: 0.05},
		{Name: MiddleProximalCurl, Lower: -0.1, Upper: 1.7},
		{Name: MiddleDistalCurl, Lower: -1.8, Upper: 0.05},
	}
}
