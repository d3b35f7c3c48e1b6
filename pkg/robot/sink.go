package robot

import (
	"context"

	"github.com/gwillem/handteleop/pkg/hand"
)

// armConn is the servo surface the sink drives, satisfied by *ServoArm.
type armConn interface {
	WriteAngles(ctx context.Context, angles map[string]float64) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Close() error
}

// ServoSink routes committed angles to the attached arms. A side
// without hardware is silently skipped, so the controller can run with
// one arm or none.
type ServoSink struct {
	arms map[hand.Side]armConn
}

// NewServoSink returns a sink with no arms attached.
func NewServoSink() *ServoSink {
	return &ServoSink{arms: make(map[hand.Side]armConn)}
}

// Attach connects one side's arm.
func (s *ServoSink) Attach(side hand.Side, arm *ServoArm) {
	s.arms[side] = arm
}

func (s *ServoSink) attach(side hand.Side, arm armConn) {
	s.arms[side] = arm
}

// WriteAngles commits one side's batch of joint angles.
func (s *ServoSink) WriteAngles(ctx context.Context, side hand.Side, angles map[string]float64) error {
	arm, ok := s.arms[side]
	if !ok {
		return nil
	}
	return arm.WriteAngles(ctx, angles)
}

// Enable enables torque on every attached arm.
func (s *ServoSink) Enable(ctx context.Context) error {
	for _, arm := range s.arms {
		if err := arm.Enable(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Disable disables torque on every attached arm.
func (s *ServoSink) Disable(ctx context.Context) error {
	for _, arm := range s.arms {
		if err := arm.Disable(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every attached arm, returning the first error.
func (s *ServoSink) Close() error {
	var first error
	for _, arm := range s.arms {
		if err := arm.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Shutdown lets every arm go limp before dropping its bus: torque off
// first, then close. Disable errors do not stop the close pass.
func (s *ServoSink) Shutdown(ctx context.Context) error {
	first := s.Disable(ctx)
	if err := s.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
