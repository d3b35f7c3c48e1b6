package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/gwillem/handteleop/pkg/hand"
)

type fakeArm struct {
	calls      []string
	disableErr error
	closeErr   error
}

func (f *fakeArm) WriteAngles(ctx context.Context, angles map[string]float64) error {
	f.calls = append(f.calls, "write")
	return nil
}

func (f *fakeArm) Enable(ctx context.Context) error {
	f.calls = append(f.calls, "enable")
	return nil
}

func (f *fakeArm) Disable(ctx context.Context) error {
	f.calls = append(f.calls, "disable")
	return f.disableErr
}

func (f *fakeArm) Close() error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}

func TestSinkWriteSkipsDetachedSide(t *testing.T) {
	s := NewServoSink()
	arm := &fakeArm{}
	s.attach(hand.Right, arm)

	if err := s.WriteAngles(context.Background(), hand.Left, map[string]float64{"elbow_flex": 1}); err != nil {
		t.Fatalf("detached side: %v", err)
	}
	if len(arm.calls) != 0 {
		t.Errorf("detached side reached the other arm: %v", arm.calls)
	}
}

func TestSinkShutdownDisablesBeforeClose(t *testing.T) {
	s := NewServoSink()
	arm := &fakeArm{}
	s.attach(hand.Right, arm)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"disable", "close"}
	if len(arm.calls) != len(want) {
		t.Fatalf("Shutdown calls = %v, want %v", arm.calls, want)
	}
	for i, c := range want {
		if arm.calls[i] != c {
			t.Errorf("Shutdown call %d = %q, want %q", i, arm.calls[i], c)
		}
	}
}

func TestSinkShutdownClosesDespiteDisableError(t *testing.T) {
	s := NewServoSink()
	arm := &fakeArm{disableErr: errors.New("bus gone")}
	s.attach(hand.Left, arm)

	err := s.Shutdown(context.Background())
	if err == nil || err.Error() != "bus gone" {
		t.Errorf("Shutdown error = %v, want the disable error", err)
	}
	if arm.calls[len(arm.calls)-1] != "close" {
		t.Errorf("arm was not closed after disable failed: %v", arm.calls)
	}
}
