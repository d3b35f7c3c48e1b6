// Package handteleop turns streaming hand-tracking frames into joint
// commands for a pair of 7-DOF robot arms with 3-finger effectors.
//
// Each control tick filters the operator's wrist pose, retargets the
// tracked finger shape onto the effector, solves arm inverse kinematics,
// and gates the result against joint limits and self-collision before
// committing it to the servos.
//
// # Installation
//
//	go install github.com/gwillem/handteleop/cmd/handteleop@latest
//
// # Usage
//
// First, run setup to detect and calibrate your arms:
//
//	handteleop setup
//
// Then start teleoperation:
//
//	handteleop run
//
// Without hardware, the sim binary runs the full pipeline against a
// synthetic hand source:
//
//	handteleop-sim -hz 60
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/handteleop: CLI with run, setup, and info commands
//   - cmd/handteleop-sim: standalone simulation loop
//   - pkg/teleop: per-tick pipeline controller and safety gate
//   - pkg/tracking: hand frame sources
//   - pkg/hand: hand joint naming and shape retargeting
//   - pkg/kinematics: chain model, CCD and two-bone solvers, presets
//   - pkg/filter: pose and shape smoothing
//   - pkg/collision: capsule self-collision world
//   - pkg/robot: servo actuation, calibration, and configuration
//   - pkg/spatial: shared vector/quaternion helpers
package handteleop
