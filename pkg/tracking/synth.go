package tracking

import (
	"context"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/spatial"
)

// Wrist orbit in front of the shoulders, meters and rad/s. The orbit
// stays inside the arm's reach sphere with margin.
const (
	orbitForward = 0.28
	orbitHeight  = 1.08
	orbitRadiusX = 0.07
	orbitRadiusZ = 0.04
	orbitRate    = 2 * math.Pi * 0.2
	curlRate     = 2 * math.Pi * 0.25
	spreadRate   = 2 * math.Pi * 0.15
)

// Bend applied at each finger articulation at full curl.
const maxSegmentBend = 2 * math.Pi / 3

// SynthConfig tunes the synthetic tracking source.
type SynthConfig struct {
	Step         time.Duration `json:"step"`          // frame period
	Noise        float64       `json:"noise"`         // position jitter sigma, meters
	DropoutEvery time.Duration `json:"dropout_every"` // visible stretch between dropouts, 0 = never drop
	DropoutFor   time.Duration `json:"dropout_for"`   // length of each dropout
	Seed         int64         `json:"seed"`
}

// DefaultSynthConfig returns a 90 Hz source with light jitter and no
// dropouts.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Step:       time.Second / 90,
		Noise:      0.0015,
		DropoutFor: 200 * time.Millisecond,
		Seed:       1,
	}
}

// Synth generates a deterministic pair of moving hands: the wrists
// orbit an ellipse in front of the shoulders while the fingers curl on
// sinusoids and the thumbs sweep their spread range. All 25 joints are
// emitted with plausible bone geometry, so the retargeter measures
// real angles. Gaussian jitter and periodic per-hand dropout windows
// exercise the filtering and re-acquisition paths.
//
// Read never blocks; each call advances the simulated clock by Step.
// The caller provides real-time pacing.
type Synth struct {
	cfg   SynthConfig
	rng   *rand.Rand
	epoch time.Time
	n     int64
}

// NewSynth returns a synthetic source.
func NewSynth(cfg SynthConfig) *Synth {
	if cfg.Step <= 0 {
		cfg.Step = DefaultSynthConfig().Step
	}
	if cfg.Noise < 0 {
		cfg.Noise = 0
	}
	return &Synth{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		epoch: time.Now(),
	}
}

// Read returns the next synthetic frame pair.
func (s *Synth) Read(ctx context.Context) (FramePair, error) {
	select {
	case <-ctx.Done():
		return FramePair{}, ctx.Err()
	default:
	}

	n := s.n
	s.n++
	t := float64(n) * s.cfg.Step.Seconds()

	return FramePair{
		Left:  s.handFrame(hand.Left, t),
		Right: s.handFrame(hand.Right, t),
		Stamp: s.epoch.Add(time.Duration(n) * s.cfg.Step),
	}, nil
}

// Close implements Source.
func (s *Synth) Close() error {
	return nil
}

func (s *Synth) visible(side hand.Side, t float64) bool {
	if s.cfg.DropoutEvery <= 0 || s.cfg.DropoutFor <= 0 {
		return true
	}
	cycle := (s.cfg.DropoutEvery + s.cfg.DropoutFor).Seconds()
	if side == hand.Left {
		// Half a cycle apart, so the hands never vanish together.
		t += cycle / 2
	}
	return math.Mod(t, cycle) < s.cfg.DropoutEvery.Seconds()
}

func (s *Synth) handFrame(side hand.Side, t float64) hand.Frame {
	f := hand.NewFrame(side)
	if !s.visible(side, t) {
		return f
	}

	ph := phase(side)
	a := orbitRate*t + ph
	m := side.Sign()

	wristPos := r3.Vec{
		X: m * (kinematics.ShoulderOffset + orbitRadiusX*math.Cos(a)),
		Y: orbitForward + 0.02*math.Sin(0.5*a),
		Z: orbitHeight + orbitRadiusZ*math.Sin(a),
	}
	tilt := 0.2 * math.Sin(0.8*a)
	yaw := m * 0.15 * math.Sin(0.3*a)
	ori := spatial.Normalize(quat.Mul(
		spatial.AxisAngle(r3.Vec{Z: 1}, yaw),
		spatial.AxisAngle(r3.Vec{X: 1}, tilt)))

	curl := 0.5 + 0.5*math.Sin(curlRate*t+ph)
	thumbCurl := 0.4 + 0.4*math.Sin(0.8*curlRate*t+ph+0.7)
	spread := 0.9 + 0.35*math.Sin(spreadRate*t+ph)

	local := localSkeleton(curl, thumbCurl, spread)
	for _, name := range hand.AllJoints() {
		p, ok := local[name]
		if !ok {
			continue
		}
		if side == hand.Left {
			p.X = -p.X
		}
		world := s.jitter(r3.Add(wristPos, spatial.Rotate(ori, p)))
		f.Joints[name] = spatial.Pose{Pos: world, Ori: ori}
	}
	return f
}

// localSkeleton lays out a right hand in the wrist frame: fingers
// along +Y with bases spread over X, curling toward -Z, the thumb
// leaning spread radians toward +X. The left hand mirrors these points
// over the x=0 plane.
func localSkeleton(curl, thumbCurl, spread float64) map[hand.JointName]r3.Vec {
	pts := make(map[hand.JointName]r3.Vec, 25)
	pts[hand.Wrist] = r3.Vec{}

	digits := []struct {
		names []hand.JointName
		base  r3.Vec
		dir   r3.Vec
		axis  r3.Vec
		lens  []float64
		bend  float64
	}{
		{
			names: []hand.JointName{
				hand.ThumbMetacarpal, hand.ThumbProximal,
				hand.ThumbDistal, hand.ThumbTip,
			},
			base: r3.Vec{X: 0.025, Y: 0.015},
			dir:  r3.Vec{X: math.Sin(spread), Y: math.Cos(spread)},
			axis: r3.Vec{X: math.Cos(spread), Y: -math.Sin(spread)},
			lens: []float64{0.035, 0.03, 0.025},
			bend: thumbCurl,
		},
		{
			names: []hand.JointName{
				hand.IndexMetacarpal, hand.IndexProximal,
				hand.IndexIntermediate, hand.IndexDistal, hand.IndexTip,
			},
			base: r3.Vec{X: 0.02, Y: 0.04},
			dir:  r3.Vec{Y: 1},
			axis: r3.Vec{X: 1},
			lens: []float64{0.05, 0.04, 0.03, 0.02},
			bend: curl,
		},
		{
			names: []hand.JointName{
				hand.MiddleMetacarpal, hand.MiddleProximal,
				hand.MiddleIntermediate, hand.MiddleDistal, hand.MiddleTip,
			},
			base: r3.Vec{Y: 0.04},
			dir:  r3.Vec{Y: 1},
			axis: r3.Vec{X: 1},
			lens: []float64{0.055, 0.045, 0.033, 0.022},
			bend: curl,
		},
		{
			names: []hand.JointName{
				hand.RingMetacarpal, hand.RingProximal,
				hand.RingIntermediate, hand.RingDistal, hand.RingTip,
			},
			base: r3.Vec{X: -0.02, Y: 0.04},
			dir:  r3.Vec{Y: 1},
			axis: r3.Vec{X: 1},
			lens: []float64{0.05, 0.04, 0.03, 0.02},
			bend: 0.9 * curl,
		},
		{
			names: []hand.JointName{
				hand.PinkyMetacarpal, hand.PinkyProximal,
				hand.PinkyIntermediate, hand.PinkyDistal, hand.PinkyTip,
			},
			base: r3.Vec{X: -0.04, Y: 0.038},
			dir:  r3.Vec{Y: 1},
			axis: r3.Vec{X: 1},
			lens: []float64{0.042, 0.032, 0.025, 0.018},
			bend: 0.85 * curl,
		},
	}

	for _, d := range digits {
		p := d.base
		dir := d.dir
		pts[d.names[0]] = p
		rot := spatial.AxisAngle(d.axis, -d.bend*maxSegmentBend)
		for i, l := range d.lens {
			if i > 0 {
				// Metacarpal bones stay straight; curl starts at
				// the proximal articulation.
				dir = spatial.Rotate(rot, dir)
			}
			p = r3.Add(p, r3.Scale(l, dir))
			pts[d.names[i+1]] = p
		}
	}
	return pts
}

func (s *Synth) jitter(p r3.Vec) r3.Vec {
	if s.cfg.Noise <= 0 {
		return p
	}
	return r3.Vec{
		X: p.X + s.rng.NormFloat64()*s.cfg.Noise,
		Y: p.Y + s.rng.NormFloat64()*s.cfg.Noise,
		Z: p.Z + s.rng.NormFloat64()*s.cfg.Noise,
	}
}

func phase(side hand.Side) float64 {
	if side == hand.Left {
		return math.Pi / 3
	}
	return 0
}
