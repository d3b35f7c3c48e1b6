// Package tracking supplies hand frames to the teleop controller.
package tracking

import (
	"context"
	"time"

	"github.com/gwillem/handteleop/pkg/hand"
)

// FramePair is one tick of tracking input, both hands stamped together.
type FramePair struct {
	Left  hand.Frame
	Right hand.Frame
	Stamp time.Time
}

// Side returns the frame for one hand.
func (p FramePair) Side(s hand.Side) hand.Frame {
	if s == hand.Left {
		return p.Left
	}
	return p.Right
}

// Source produces hand frames. Read returns the next frame or the ctx
// error once cancelled. A hand that is not visible comes back with an
// empty joint map, so Frame.Tracked reports false.
type Source interface {
	Read(ctx context.Context) (FramePair, error)
	Close() error
}
