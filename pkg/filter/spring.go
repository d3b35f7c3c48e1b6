package filter

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Integration step bounds. A stalled tick gets integrated as maxDt
// instead of blowing up the spring.
const (
	minDt = 1e-4
	maxDt = 0.05
)

// SpringConfig tunes the second-order position tracker.
type SpringConfig struct {
	Stiffness float64 `json:"stiffness"`
	Damping   float64 `json:"damping"`
	Mass      float64 `json:"mass"`
}

// DefaultSpringConfig returns a near-critically damped spring tuned for
// wrist tracking at 60 Hz.
func DefaultSpringConfig() SpringConfig {
	return SpringConfig{
		Stiffness: 64.0,
		Damping:   14.4,
		Mass:      1.0,
	}
}

// SpringDamper tracks a moving target with spring-damper dynamics,
// trading a little lag for continuous velocity.
type SpringDamper struct {
	cfg    SpringConfig
	pos    r3.Vec
	vel    r3.Vec
	primed bool
}

// NewSpringDamper returns a spring-damper tracker. Non-positive config
// fields fall back to their defaults.
func NewSpringDamper(cfg SpringConfig) *SpringDamper {
	def := DefaultSpringConfig()
	if cfg.Stiffness <= 0 || math.IsNaN(cfg.Stiffness) {
		cfg.Stiffness = def.Stiffness
	}
	if cfg.Damping <= 0 || math.IsNaN(cfg.Damping) {
		cfg.Damping = def.Damping
	}
	if cfg.Mass <= 0 || math.IsNaN(cfg.Mass) {
		cfg.Mass = def.Mass
	}
	return &SpringDamper{cfg: cfg}
}

// Update advances the spring toward target by dt seconds and returns
// the new position. dt is clamped into [1e-4, 0.05]. The first sample
// after construction or Reset snaps to the target with zero velocity.
func (s *SpringDamper) Update(target r3.Vec, dt float64) r3.Vec {
	if !s.primed {
		s.pos = target
		s.vel = r3.Vec{}
		s.primed = true
		return s.pos
	}
	dt = clampDt(dt)

	spring := r3.Scale(s.cfg.Stiffness, r3.Sub(target, s.pos))
	damp := r3.Scale(s.cfg.Damping, s.vel)
	accel := r3.Scale(1/s.cfg.Mass, r3.Sub(spring, damp))

	// Semi-implicit Euler keeps the integration stable at tick rates.
	s.vel = r3.Add(s.vel, r3.Scale(dt, accel))
	s.pos = r3.Add(s.pos, r3.Scale(dt, s.vel))
	return s.pos
}

// Position returns the current spring position.
func (s *SpringDamper) Position() r3.Vec { return s.pos }

// Velocity returns the current spring velocity.
func (s *SpringDamper) Velocity() r3.Vec { return s.vel }

// Reset clears the spring; the next sample snaps.
func (s *SpringDamper) Reset() {
	s.primed = false
	s.pos = r3.Vec{}
	s.vel = r3.Vec{}
}

func clampDt(dt float64) float64 {
	if dt < minDt || math.IsNaN(dt) {
		return minDt
	}
	if dt > maxDt {
		return maxDt
	}
	return dt
}
