package tracking

import (
	"context"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
)

func TestSynthDeterministic(t *testing.T) {
	cfg := DefaultSynthConfig()
	cfg.Noise = 0.002
	a := NewSynth(cfg)
	b := NewSynth(cfg)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		fa, err := a.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		fb, _ := b.Read(ctx)

		pa, _ := fa.Right.Position(hand.IndexTip)
		pb, _ := fb.Right.Position(hand.IndexTip)
		if pa != pb {
			t.Fatalf("frame %d diverged: %+v vs %+v", i, pa, pb)
		}
	}
}

func TestSynthEmitsAllJoints(t *testing.T) {
	s := NewSynth(DefaultSynthConfig())
	pair, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range []hand.Frame{pair.Left, pair.Right} {
		if !f.Tracked() {
			t.Fatalf("%s hand not tracked", f.Side)
		}
		if len(f.Joints) != len(hand.AllJoints()) {
			t.Errorf("%s hand has %d joints, want %d",
				f.Side, len(f.Joints), len(hand.AllJoints()))
		}
	}
}

func TestSynthWristsStayWithinReach(t *testing.T) {
	cfg := DefaultSynthConfig()
	cfg.Noise = 0
	s := NewSynth(cfg)
	ctx := context.Background()

	reach := kinematics.UpperArmLength + kinematics.ForearmLength
	for i := 0; i < 500; i++ {
		pair, _ := s.Read(ctx)
		for _, side := range hand.Sides() {
			root := r3.Vec{
				X: side.Sign() * kinematics.ShoulderOffset,
				Z: kinematics.ShoulderHeight,
			}
			wrist, ok := pair.Side(side).Position(hand.Wrist)
			if !ok {
				t.Fatalf("tick %d: %s wrist missing", i, side)
			}
			if d := r3.Norm(r3.Sub(wrist, root)); d > reach*0.999 {
				t.Fatalf("tick %d: %s wrist %v m from shoulder, beyond reach",
					i, side, d)
			}
		}
	}
}

func TestSynthShapeSweep(t *testing.T) {
	cfg := DefaultSynthConfig()
	cfg.Noise = 0
	s := NewSynth(cfg)
	ctx := context.Background()
	rt := hand.NewRetargeter(hand.Right, hand.DefaultRetargetConfig())

	minCurl, maxCurl := 1.0, 0.0
	minAbd, maxAbd := 1.0, -1.0
	for i := 0; i < 600; i++ { // several full curl and spread periods
		pair, _ := s.Read(ctx)
		shape := rt.Update(pair.Right)
		if c := shape.IndexCurl[0]; c < minCurl {
			minCurl = c
		}
		if c := shape.IndexCurl[0]; c > maxCurl {
			maxCurl = c
		}
		if a := shape.ThumbAbduction; a < minAbd {
			minAbd = a
		}
		if a := shape.ThumbAbduction; a > maxAbd {
			maxAbd = a
		}
	}

	if minCurl > 0.1 || maxCurl < 0.9 {
		t.Errorf("index curl swept [%v, %v], want to cover [0.1, 0.9]", minCurl, maxCurl)
	}
	if minAbd > -0.2 || maxAbd < 0.2 {
		t.Errorf("abduction swept [%v, %v], want both signs", minAbd, maxAbd)
	}
}

func TestSynthDropout(t *testing.T) {
	cfg := DefaultSynthConfig()
	cfg.Step = 10 * time.Millisecond
	cfg.DropoutEvery = 100 * time.Millisecond
	cfg.DropoutFor = 50 * time.Millisecond
	s := NewSynth(cfg)
	ctx := context.Background()

	var leftGone, rightGone int
	for i := 0; i < 60; i++ {
		pair, _ := s.Read(ctx)
		l, r := pair.Left.Tracked(), pair.Right.Tracked()
		if !l {
			leftGone++
		}
		if !r {
			rightGone++
		}
		if !l && !r {
			t.Fatalf("tick %d: both hands dropped at once", i)
		}
	}
	if leftGone == 0 || rightGone == 0 {
		t.Errorf("dropouts never fired: left %d, right %d", leftGone, rightGone)
	}
}

func TestSynthStampsAdvance(t *testing.T) {
	cfg := DefaultSynthConfig()
	s := NewSynth(cfg)
	ctx := context.Background()

	prev, _ := s.Read(ctx)
	for i := 0; i < 10; i++ {
		cur, _ := s.Read(ctx)
		if got := cur.Stamp.Sub(prev.Stamp); got != cfg.Step {
			t.Fatalf("stamp delta = %v, want %v", got, cfg.Step)
		}
		prev = cur
	}
}

func TestSynthContextCancelled(t *testing.T) {
	s := NewSynth(DefaultSynthConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Read(ctx); err == nil {
		t.Error("cancelled context did not surface an error")
	}
}
