package filter

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestSpringFirstSampleSnaps(t *testing.T) {
	s := NewSpringDamper(DefaultSpringConfig())
	target := r3.Vec{X: 0.3, Y: 0.1, Z: 1.2}
	got := s.Update(target, 1.0/60)
	if r3.Norm(r3.Sub(got, target)) > tolerance {
		t.Errorf("first Update = %+v, want %+v", got, target)
	}
	if r3.Norm(s.Velocity()) > tolerance {
		t.Errorf("first Update left velocity %+v", s.Velocity())
	}
}

func TestSpringConvergesToStep(t *testing.T) {
	s := NewSpringDamper(DefaultSpringConfig())
	s.Update(r3.Vec{}, 1.0/60)

	target := r3.Vec{X: 0.2}
	dt := 1.0 / 60
	maxX := 0.0
	var pos r3.Vec
	for i := 0; i < 120; i++ { // 2 s
		pos = s.Update(target, dt)
		maxX = math.Max(maxX, pos.X)
	}

	if r3.Norm(r3.Sub(pos, target)) > 1e-3 {
		t.Errorf("spring %v m from target after 2 s", r3.Norm(r3.Sub(pos, target)))
	}
	// Near-critical damping: overshoot stays small.
	if maxX > target.X*1.02 {
		t.Errorf("overshoot %v m on a %v m step", maxX-target.X, target.X)
	}
}

func TestSpringDtClamp(t *testing.T) {
	a := NewSpringDamper(DefaultSpringConfig())
	b := NewSpringDamper(DefaultSpringConfig())
	a.Update(r3.Vec{}, 1.0/60)
	b.Update(r3.Vec{}, 1.0/60)

	target := r3.Vec{X: 1}
	pa := a.Update(target, 10.0) // stalled tick
	pb := b.Update(target, maxDt)

	if r3.Norm(r3.Sub(pa, pb)) > tolerance {
		t.Errorf("dt=10 stepped %+v, dt=%v stepped %+v", pa, maxDt, pb)
	}
	if math.IsNaN(pa.X) || math.IsInf(pa.X, 0) {
		t.Errorf("stalled tick produced %v", pa.X)
	}
}

func TestSpringStationaryAtTarget(t *testing.T) {
	s := NewSpringDamper(DefaultSpringConfig())
	target := r3.Vec{X: -0.1, Z: 0.9}
	s.Update(target, 1.0/60)
	for i := 0; i < 100; i++ {
		got := s.Update(target, 1.0/60)
		if r3.Norm(r3.Sub(got, target)) > tolerance {
			t.Fatalf("spring drifted to %+v at step %d", got, i)
		}
	}
}

func TestSpringResetSnaps(t *testing.T) {
	s := NewSpringDamper(DefaultSpringConfig())
	s.Update(r3.Vec{}, 1.0/60)
	for i := 0; i < 30; i++ {
		s.Update(r3.Vec{X: 1}, 1.0/60)
	}
	s.Reset()

	target := r3.Vec{Y: -2}
	got := s.Update(target, 1.0/60)
	if r3.Norm(r3.Sub(got, target)) > tolerance {
		t.Errorf("post-reset Update = %+v, want %+v", got, target)
	}
}

func TestSpringConfigDefaults(t *testing.T) {
	s := NewSpringDamper(SpringConfig{})
	if s.cfg != DefaultSpringConfig() {
		t.Errorf("zero config = %+v, want defaults", s.cfg)
	}
}
