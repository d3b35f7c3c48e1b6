package kinematics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/spatial"
)

// SolverConfig tunes the cyclic coordinate descent solver.
type SolverConfig struct {
	MaxIterations         int     `json:"max_iterations"`
	PositionTolerance     float64 `json:"position_tolerance"`    // meters
	OrientationTolerance  float64 `json:"orientation_tolerance"` // radians
	Damping               float64 `json:"damping"`               // fraction of each correction applied
	MaxStep               float64 `json:"max_step"`              // per-joint step bound, radians
	Regularization        float64 `json:"regularization"`        // pull toward the zero pose
	TipPositionWeight     float64 `json:"-"`                     // position weight at the tip joint
	RootOrientationWeight float64 `json:"-"`                     // orientation weight at the root joint
	ReachMargin           float64 `json:"-"`                     // fraction of reach used when clamping goals
}

// DefaultSolverConfig returns the solver tuning used by the controller.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxIterations:         25,
		PositionTolerance:     0.003,
		OrientationTolerance:  0.03,
		Damping:               0.45,
		MaxStep:               0.15,
		Regularization:        0.005,
		TipPositionWeight:     0.2,
		RootOrientationWeight: 0.0,
		ReachMargin:           0.999,
	}
}

// Result reports a single Solve call.
type Result struct {
	Reachable        bool
	Converged        bool
	Iterations       int
	PositionError    float64
	OrientationError float64
}

// Solver runs damped cyclic coordinate descent over a chain.
type Solver struct {
	cfg SolverConfig
}

// NewSolver returns a solver. Out-of-range config fields fall back to
// their defaults.
func NewSolver(cfg SolverConfig) *Solver {
	def := DefaultSolverConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.PositionTolerance <= 0 {
		cfg.PositionTolerance = def.PositionTolerance
	}
	if cfg.OrientationTolerance <= 0 {
		cfg.OrientationTolerance = def.OrientationTolerance
	}
	if cfg.Damping <= 0 || cfg.Damping > 1 {
		cfg.Damping = def.Damping
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.Regularization < 0 {
		cfg.Regularization = def.Regularization
	}
	if cfg.ReachMargin <= 0 || cfg.ReachMargin > 1 {
		cfg.ReachMargin = def.ReachMargin
	}
	// Zero means "use the default" here: a tip weight of exactly 0
	// would stop the wrist joints from serving position at all.
	if cfg.TipPositionWeight <= 0 || cfg.TipPositionWeight > 1 {
		cfg.TipPositionWeight = def.TipPositionWeight
	}
	cfg.RootOrientationWeight = clamp(cfg.RootOrientationWeight, 0, 1)
	return &Solver{cfg: cfg}
}

// Config returns the effective solver configuration.
func (s *Solver) Config() SolverConfig {
	return s.cfg
}

// Solve drives the chain's end effector toward goal, mutating the
// chain's angles in place. Starting from the current angles gives warm
// starts across ticks.
//
// Goals beyond the chain's reach are projected onto the reachable
// sphere (scaled by ReachMargin) and reported as not reachable; the
// solver still runs against the projected goal.
func (s *Solver) Solve(c *Chain, goal spatial.Pose) Result {
	res := Result{Reachable: true}

	// A poisoned goal must not move the arm.
	if !spatial.Finite(goal.Pos) || !spatial.FiniteQuat(goal.Ori) {
		res.Reachable = false
		res.PositionError = math.Inf(1)
		return res
	}

	target := goal.Pos
	root := c.RootPivot()
	if maxR := c.Reach() * s.cfg.ReachMargin; maxR > 0 {
		d := r3.Sub(target, root)
		if dist := r3.Norm(d); dist > maxR {
			res.Reachable = false
			target = r3.Add(root, r3.Scale(maxR/dist, d))
		}
	}
	goalOri := spatial.Normalize(goal.Ori)

	n := len(c.Joints)
	for it := 0; it < s.cfg.MaxIterations; it++ {
		_, ee := c.walk()
		res.Iterations = it
		res.PositionError = r3.Norm(r3.Sub(target, ee.Pos))
		res.OrientationError = spatial.AngleBetween(ee.Ori, goalOri)
		if res.PositionError < s.cfg.PositionTolerance &&
			res.OrientationError < s.cfg.OrientationTolerance {
			res.Converged = true
			return res
		}

		// One sweep, distal to proximal: wrist joints pick up the
		// remaining orientation error before the large root joints
		// move the whole arm.
		for i := n - 1; i >= 0; i-- {
			states, ee := c.walk()
			st := states[i]

			posCorr := spatial.SignedAngleAbout(
				r3.Sub(ee.Pos, st.pivot), r3.Sub(target, st.pivot), st.axis)
			oriCorr := axisDelta(goalOri, ee.Ori, st.axis)
			wPos, wOri := s.weights(i, n)

			j := &c.Joints[i]
			delta := wPos*posCorr + wOri*oriCorr - s.cfg.Regularization*j.Angle
			delta *= s.cfg.Damping
			delta = clamp(delta, -s.cfg.MaxStep, s.cfg.MaxStep)
			j.Angle = clamp(j.Angle+delta, j.Lower, j.Upper)
		}
	}

	_, ee := c.walk()
	res.Iterations = s.cfg.MaxIterations
	res.PositionError = r3.Norm(r3.Sub(target, ee.Pos))
	res.OrientationError = spatial.AngleBetween(ee.Ori, goalOri)
	res.Converged = res.PositionError < s.cfg.PositionTolerance &&
		res.OrientationError < s.cfg.OrientationTolerance
	return res
}

// weights returns the position/orientation blend for joint i of n.
// Proximal joints mostly serve position, distal joints orientation.
func (s *Solver) weights(i, n int) (wPos, wOri float64) {
	if n <= 1 {
		return 1, 1
	}
	t := smoothstep(float64(i) / float64(n-1))
	wPos = 1 + (s.cfg.TipPositionWeight-1)*t
	wOri = s.cfg.RootOrientationWeight + (1-s.cfg.RootOrientationWeight)*t
	return wPos, wOri
}

// axisDelta projects the shortest rotation from current to goal onto a
// world axis, returning the signed angle contribution available there.
func axisDelta(goal, current quat.Number, axis r3.Vec) float64 {
	d := quat.Mul(goal, quat.Conj(current))
	if d.Real < 0 {
		d = quat.Scale(-1, d)
	}
	mag := quat.Abs(d)
	if mag < 1e-12 {
		return 0
	}
	angle := 2 * math.Acos(math.Min(d.Real/mag, 1))
	if angle < 1e-9 {
		return 0
	}
	v := r3.Vec{X: d.Imag, Y: d.Jmag, Z: d.Kmag}
	nv := r3.Norm(v)
	if nv < 1e-12 {
		return 0
	}
	return angle * r3.Dot(r3.Scale(1/nv, v), axis)
}
