// Package teleop runs the hand-tracking teleoperation pipeline: wrist
// poses are filtered into end-effector goals and solved through IK,
// finger positions are retargeted onto the 3-finger effector, and the
// results are gated by collision feedback and committed to a sink once
// per control tick, independently for both hands.
package teleop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/collision"
	"github.com/gwillem/handteleop/pkg/filter"
	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/spatial"
	"github.com/gwillem/handteleop/pkg/tracking"
)

// Tick time step bounds, seconds.
const (
	minTickDt = 1e-4
	maxTickDt = 0.05
)

// Sink receives one side's committed joint angles each tick: the 7 arm
// joints plus the 7 effector joints in a single batch.
type Sink interface {
	WriteAngles(ctx context.Context, side hand.Side, angles map[string]float64) error
}

// Tuning collects the pipeline's tuning knobs.
type Tuning struct {
	Spring           filter.SpringConfig
	OrientationAlpha float64
	ShapeWindow      int // samples; 1 disables shape smoothing
	AngleWindow      int // samples; 1 disables post-solve smoothing
	Solver           kinematics.SolverConfig
	Retarget         hand.RetargetConfig
	ContactGrace     time.Duration
	SafeBlend        float64
}

// DefaultTuning returns the tuning the controller ships with.
func DefaultTuning() Tuning {
	return Tuning{
		Spring:           filter.DefaultSpringConfig(),
		OrientationAlpha: 0.35,
		ShapeWindow:      5,
		AngleWindow:      3,
		Solver:           kinematics.DefaultSolverConfig(),
		Retarget:         hand.DefaultRetargetConfig(),
		ContactGrace:     150 * time.Millisecond,
		SafeBlend:        0.25,
	}
}

// Config wires the controller's collaborators.
type Config struct {
	Source tracking.Source
	Sink   Sink            // nil: discard output
	World  collision.World // nil: default capsule world
	Hz     int
	Mirror bool // operator's right hand drives the robot's left arm
	Tuning Tuning

	// Limits tightens the arm joint envelope on top of the defaults.
	Limits map[string]kinematics.Limit
}

// SideState is one hand's slice of a state update.
type SideState struct {
	Tracked   bool
	Reachable bool
	Contact   bool
	Arm       map[string]float64
	Hand      map[string]float64
}

// State is published once per control tick.
type State struct {
	Left      SideState
	Right     SideState
	Timestamp time.Time
	Error     error
}

// Side returns one hand's slice of the state.
func (s State) Side(side hand.Side) SideState {
	if side == hand.Left {
		return s.Left
	}
	return s.Right
}

// Controller manages the teleoperation control loop.
type Controller struct {
	source tracking.Source
	sink   Sink
	world  collision.World
	hz     int
	mirror bool
	tuning Tuning

	hands     map[hand.Side]*handPipeline
	lastStamp time.Time

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController creates a teleoperation controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("tracking source required")
	}
	if cfg.Sink == nil {
		cfg.Sink = noopSink{}
	}
	if cfg.World == nil {
		cfg.World = collision.DefaultCapsuleWorld()
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	cfg.Tuning = normalizeTuning(cfg.Tuning)

	hands := make(map[hand.Side]*handPipeline, 2)
	for _, side := range hand.Sides() {
		hands[side] = newHandPipeline(side, cfg.Tuning, cfg.Limits)
	}

	return &Controller{
		source:  cfg.Source,
		sink:    cfg.Sink,
		world:   cfg.World,
		hz:      cfg.Hz,
		mirror:  cfg.Mirror,
		tuning:  cfg.Tuning,
		hands:   hands,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// Close closes the tracking source. The sink stays open; its owner
// decides when to release the hardware.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return c.source.Close()
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Mirror returns whether mirror mode is active.
func (c *Controller) Mirror() bool {
	return c.mirror
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start begins the control loop and blocks until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log("Hand teleoperation started at %d Hz", c.hz)
	if c.mirror {
		c.log("Mirror mode: operator hands are swapped")
	}

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log("Teleoperation stopped")
}

// step runs one control tick: read, filter, solve, gate, commit.
func (c *Controller) step(ctx context.Context) {
	pair, err := c.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log("Tracking read error: %v", err)
		c.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}

	if c.mirror {
		pair = mirrorPair(pair)
	}
	dt := c.tickDt(pair.Stamp)
	now := pair.Stamp
	if now.IsZero() {
		now = time.Now()
	}

	// Solve both hands against the tracked goals, then let the world
	// see the resulting link placements before gating.
	for _, side := range hand.Sides() {
		h := c.hands[side]
		h.update(pair.Side(side), dt)
		c.world.SetArmPivots(side, h.chain.Pivots())
	}
	c.world.Step(dt)
	contacts := c.world.Contacts()

	st := State{Timestamp: now}
	for _, side := range hand.Sides() {
		h := c.hands[side]
		contact := contacts.Side(side)

		if h.tracking {
			was := h.blending
			h.gate(contact, now, c.tuning.ContactGrace, c.tuning.SafeBlend)
			if h.blending && !was {
				c.log("%s arm in contact, easing toward safe pose", side)
			}
			angles := h.commands()
			if err := c.sink.WriteAngles(ctx, side, angles); err != nil {
				c.log("%s write error: %v", side, err)
			}
		}

		ss := SideState{
			Tracked:   h.tracking,
			Reachable: h.reachable,
			Contact:   contact,
			Arm:       h.chain.AnglesByName(),
			Hand:      h.lastHand(),
		}
		if side == hand.Left {
			st.Left = ss
		} else {
			st.Right = ss
		}
	}
	c.sendState(st)
}

func (c *Controller) tickDt(stamp time.Time) float64 {
	dt := 1.0 / float64(c.hz)
	if !stamp.IsZero() && !c.lastStamp.IsZero() && stamp.After(c.lastStamp) {
		dt = stamp.Sub(c.lastStamp).Seconds()
	}
	c.lastStamp = stamp

	if dt < minTickDt {
		return minTickDt
	}
	if dt > maxTickDt {
		return maxTickDt
	}
	return dt
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

// mirrorPair swaps the hands and reflects every pose across the x=0
// plane, so the operator faces the robot like a mirror.
func mirrorPair(p tracking.FramePair) tracking.FramePair {
	p.Left, p.Right = p.Right.Mirrored(), p.Left.Mirrored()
	return p
}

func normalizeTuning(t Tuning) Tuning {
	def := DefaultTuning()
	if t.OrientationAlpha <= 0 || t.OrientationAlpha > 1 || math.IsNaN(t.OrientationAlpha) {
		t.OrientationAlpha = def.OrientationAlpha
	}
	if t.ShapeWindow <= 0 {
		t.ShapeWindow = def.ShapeWindow
	}
	if t.AngleWindow <= 0 {
		t.AngleWindow = def.AngleWindow
	}
	if t.ContactGrace <= 0 {
		t.ContactGrace = def.ContactGrace
	}
	if t.SafeBlend <= 0 || t.SafeBlend > 1 {
		t.SafeBlend = def.SafeBlend
	}
	// Spring, Solver and Retarget validate themselves on construction.
	return t
}

// handPipeline holds one hand's filters, chain, and gate state. It has
// two states: uninitialized (tracking false) and tracking. Losing the
// wrist drops it back to uninitialized, so re-acquisition snaps the
// filters to the new pose instead of interpolating across the gap.
type handPipeline struct {
	side       hand.Side
	chain      *kinematics.Chain
	solver     *kinematics.Solver
	handJoints []kinematics.Joint

	pos         *filter.SpringDamper
	ori         *filter.QuatExp
	shapeWindow *filter.MovingAverage
	angleWindow *filter.MovingAverage
	retarget    *hand.Retargeter

	tracking  bool
	reachable bool
	shape     hand.Shape

	contact      bool
	contactSince time.Time
	blending     bool
	lastSafe     []float64
	committed    map[string]float64
}

func newHandPipeline(side hand.Side, t Tuning, limits map[string]kinematics.Limit) *handPipeline {
	chain := kinematics.NewArmChain(side == hand.Left)
	chain.Base.Pos = r3.Vec{
		X: side.Sign() * kinematics.ShoulderOffset,
		Z: kinematics.ShoulderHeight,
	}
	chain.TightenLimits(kinematics.DefaultLimitOverrides())
	if len(limits) > 0 {
		chain.TightenLimits(limits)
	}

	return &handPipeline{
		side:        side,
		chain:       chain,
		solver:      kinematics.NewSolver(t.Solver),
		handJoints:  kinematics.NewHandJoints(),
		pos:         filter.NewSpringDamper(t.Spring),
		ori:         filter.NewQuatExp(t.OrientationAlpha),
		shapeWindow: filter.NewMovingAverage(hand.ShapeDims, t.ShapeWindow),
		angleWindow: filter.NewMovingAverage(len(chain.Joints), t.AngleWindow),
		retarget:    hand.NewRetargeter(side, t.Retarget),
		lastSafe:    chain.Angles(),
	}
}

// update advances one hand through filtering, IK and retargeting. A
// missing or corrupt wrist counts as tracking loss: filters reset, the
// chain freezes where it is, and the other hand is unaffected.
func (h *handPipeline) update(f hand.Frame, dt float64) {
	wrist, ok := f.Joint(hand.Wrist)
	if !ok || !spatial.Finite(wrist.Pos) || !spatial.FiniteQuat(wrist.Ori) {
		if h.tracking {
			h.reset()
		}
		return
	}
	if !h.tracking {
		h.seed(wrist.Pos)
	}
	h.tracking = true

	goal := spatial.Pose{
		Pos: h.pos.Update(wrist.Pos, dt),
		Ori: h.ori.Update(wrist.Ori),
	}
	res := h.solver.Solve(h.chain, goal)
	h.reachable = res.Reachable

	h.chain.SetAngles(h.angleWindow.Push(h.chain.Angles()))

	raw := h.retarget.Update(f)
	h.shape = hand.ShapeFromVector(h.shapeWindow.Push(raw.Vector()))
}

// seed aims the shoulder and elbow at the wrist analytically so the
// first solve after (re)acquisition starts near the goal instead of
// working over from wherever the chain froze. The wrist joints keep
// their angles; the solve orients them.
func (h *handPipeline) seed(target r3.Vec) {
	root := h.chain.RootPivot()
	m := h.side.Sign()
	pole := r3.Add(root, r3.Vec{X: m * 0.1, Y: -0.25, Z: -0.35})
	elbow, flex, _ := kinematics.SolveTwoBone(root, target, pole,
		kinematics.UpperArmLength, kinematics.ForearmLength)

	d := r3.Sub(elbow, root)
	n := r3.Norm(d)
	if n < 1e-9 {
		return
	}
	d = r3.Scale(1/n, d)

	// With yaw zero the upper arm points along Rpitch·Rroll·(0,0,-1);
	// invert that to aim it at the elbow. The mirrored chain flips the
	// roll axis, hence the side sign on the X term.
	roll := math.Asin(clamp(-m*d.X, -1, 1))
	pitch := math.Atan2(d.Y, -d.Z)

	angles := h.chain.Angles()
	angles[0] = pitch
	angles[1] = roll
	angles[2] = 0
	angles[3] = flex
	h.chain.SetAngles(angles)
}

// reset drops the pipeline back to uninitialized. The chain keeps its
// angles: the arm holds position until tracking returns.
func (h *handPipeline) reset() {
	h.tracking = false
	h.pos.Reset()
	h.ori.Reset()
	h.shapeWindow.Reset()
	h.angleWindow.Reset()
	h.retarget.Reset()
	h.contact = false
	h.contactSince = time.Time{}
	h.blending = false
}

// gate applies the contact policy. Fresh contact passes through for the
// grace period; sustained contact blends the arm back toward the last
// collision-free angles until it clears. Hand curls are not gated, so
// grasping against the body still works.
func (h *handPipeline) gate(contact bool, now time.Time, grace time.Duration, blend float64) {
	if !contact {
		h.contact = false
		h.contactSince = time.Time{}
		h.blending = false
		h.lastSafe = h.chain.Angles()
		return
	}

	if !h.contact {
		h.contact = true
		h.contactSince = now
	}
	if now.Sub(h.contactSince) < grace {
		return
	}

	h.blending = true
	if len(h.lastSafe) == len(h.chain.Joints) {
		cur := h.chain.Angles()
		for i := range cur {
			cur[i] += (h.lastSafe[i] - cur[i]) * blend
		}
		h.chain.SetAngles(cur)
	}
}

// commands builds the full 14-joint batch for this side: solved arm
// angles plus the shape mapped onto the effector joints.
func (h *handPipeline) commands() map[string]float64 {
	out := make(map[string]float64, len(h.chain.Joints)+len(h.handJoints))
	for _, j := range h.chain.Joints {
		out[j.Name] = j.Angle
	}

	curls := map[string]float64{
		kinematics.ThumbProximalCurl:  h.shape.ThumbCurl[0],
		kinematics.ThumbDistalCurl:    h.shape.ThumbCurl[1],
		kinematics.IndexProximalCurl:  h.shape.IndexCurl[0],
		kinematics.IndexDistalCurl:    h.shape.IndexCurl[1],
		kinematics.MiddleProximalCurl: h.shape.MiddleCurl[0],
		kinematics.MiddleDistalCurl:   h.shape.MiddleCurl[1],
	}
	for i := range h.handJoints {
		j := &h.handJoints[i]
		var v float64
		if j.Name == kinematics.ThumbAbduction {
			// Positive command spreads the thumb on either side, so
			// the mirrored shape sign is undone here.
			v = h.shape.ThumbAbduction * h.side.Sign() * j.Upper
		} else {
			v = curls[j.Name] * curlBound(j)
		}
		out[j.Name] = clamp(v, j.Lower, j.Upper)
	}

	h.committed = out
	return out
}

// lastHand returns the most recently committed effector angles.
func (h *handPipeline) lastHand() map[string]float64 {
	out := make(map[string]float64, len(h.handJoints))
	for i := range h.handJoints {
		if v, ok := h.committed[h.handJoints[i].Name]; ok {
			out[h.handJoints[i].Name] = v
		}
	}
	return out
}

// curlBound picks the joint bound a full curl runs to: whichever limit
// has the larger magnitude, so negative-running servos curl negative.
func curlBound(j *kinematics.Joint) float64 {
	if math.Abs(j.Lower) > math.Abs(j.Upper) {
		return j.Lower
	}
	return j.Upper
}

type noopSink struct{}

func (noopSink) WriteAngles(context.Context, hand.Side, map[string]float64) error {
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
