package teleop

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/collision"
	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/spatial"
	"github.com/gwillem/handteleop/pkg/tracking"
)

// scriptSource replays a fixed list of frame pairs, then repeats the
// last one forever.
type scriptSource struct {
	pairs  []tracking.FramePair
	i      int
	err    error
	closed bool
}

func (s *scriptSource) Read(ctx context.Context) (tracking.FramePair, error) {
	if s.err != nil {
		return tracking.FramePair{}, s.err
	}
	p := s.pairs[s.i]
	if s.i < len(s.pairs)-1 {
		s.i++
	}
	return p, nil
}

func (s *scriptSource) Close() error {
	s.closed = true
	return nil
}

// captureSink records every committed batch.
type captureSink struct {
	writes map[hand.Side][]map[string]float64
	err    error
}

func newCaptureSink() *captureSink {
	return &captureSink{writes: make(map[hand.Side][]map[string]float64)}
}

func (s *captureSink) WriteAngles(_ context.Context, side hand.Side, angles map[string]float64) error {
	cp := make(map[string]float64, len(angles))
	for k, v := range angles {
		cp[k] = v
	}
	s.writes[side] = append(s.writes[side], cp)
	return s.err
}

func (s *captureSink) last(side hand.Side) map[string]float64 {
	w := s.writes[side]
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

// scriptWorld reports whatever contact it is told to.
type scriptWorld struct {
	contact collision.Contact
	pivots  map[hand.Side]int
	steps   int
}

func newScriptWorld() *scriptWorld {
	return &scriptWorld{pivots: make(map[hand.Side]int)}
}

func (w *scriptWorld) SetArmPivots(side hand.Side, _ []r3.Vec) { w.pivots[side]++ }
func (w *scriptWorld) Step(float64)                            { w.steps++ }
func (w *scriptWorld) Contacts() collision.Contact             { return w.contact }

func wristFrame(side hand.Side, pos r3.Vec) hand.Frame {
	f := hand.NewFrame(side)
	f.Joints[hand.Wrist] = spatial.Pose{Pos: pos, Ori: spatial.Identity()}
	return f
}

// restPair puts both wrists at an easy spot in front of the shoulders.
func restPair(stamp time.Time) tracking.FramePair {
	return tracking.FramePair{
		Left:  wristFrame(hand.Left, r3.Vec{X: -0.2, Y: 0.25, Z: 1.1}),
		Right: wristFrame(hand.Right, r3.Vec{X: 0.2, Y: 0.25, Z: 1.1}),
		Stamp: stamp,
	}
}

func restScript(base time.Time, n int) []tracking.FramePair {
	pairs := make([]tracking.FramePair, n)
	for i := range pairs {
		pairs[i] = restPair(base.Add(time.Duration(i) * 20 * time.Millisecond))
	}
	return pairs
}

// lastState drains the state channel, which holds at most the newest
// update.
func lastState(t *testing.T, c *Controller) State {
	t.Helper()
	select {
	case s := <-c.States():
		return s
	default:
		t.Fatal("no state published")
		return State{}
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestNewControllerRequiresSource(t *testing.T) {
	if _, err := NewController(Config{}); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestNewControllerDefaults(t *testing.T) {
	src := &scriptSource{pairs: restScript(time.Now(), 1)}
	c, err := NewController(Config{Source: src})
	if err != nil {
		t.Fatal(err)
	}
	if c.Hz() != 60 {
		t.Fatalf("default hz = %d, want 60", c.Hz())
	}
	if c.Mirror() {
		t.Fatal("mirror should default off")
	}

	// Nil sink and world fall back to built-ins.
	c.step(context.Background())
	st := lastState(t, c)
	if !st.Left.Tracked || !st.Right.Tracked {
		t.Fatalf("both hands should track: %+v", st)
	}
}

func TestStepWritesFullBatch(t *testing.T) {
	sink := newCaptureSink()
	world := newScriptWorld()
	c, err := NewController(Config{
		Source: &scriptSource{pairs: restScript(time.Now(), 6)},
		Sink:   sink,
		World:  world,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		c.step(ctx)
	}

	for _, side := range hand.Sides() {
		got := sink.last(side)
		if got == nil {
			t.Fatalf("no writes for %s", side)
		}
		if len(got) != 14 {
			t.Fatalf("%s batch has %d joints, want 14", side, len(got))
		}
		for name, v := range got {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s %s not finite: %v", side, name, v)
			}
		}
		for _, j := range c.hands[side].chain.Joints {
			v, ok := got[j.Name]
			if !ok {
				t.Fatalf("%s batch missing arm joint %s", side, j.Name)
			}
			if v < j.Lower-1e-9 || v > j.Upper+1e-9 {
				t.Fatalf("%s %s = %v outside [%v, %v]", side, j.Name, v, j.Lower, j.Upper)
			}
		}
		for _, j := range c.hands[side].handJoints {
			v, ok := got[j.Name]
			if !ok {
				t.Fatalf("%s batch missing hand joint %s", side, j.Name)
			}
			if v < j.Lower-1e-9 || v > j.Upper+1e-9 {
				t.Fatalf("%s %s = %v outside [%v, %v]", side, j.Name, v, j.Lower, j.Upper)
			}
		}
	}

	if world.steps != 6 {
		t.Fatalf("world stepped %d times, want 6", world.steps)
	}
	if world.pivots[hand.Left] != 6 || world.pivots[hand.Right] != 6 {
		t.Fatalf("pivot pushes = %v, want 6 per side", world.pivots)
	}
}

func TestSolvesTowardWrist(t *testing.T) {
	target := r3.Vec{X: 0.2, Y: 0.28, Z: 1.1}
	base := time.Now()
	pairs := make([]tracking.FramePair, 10)
	for i := range pairs {
		pairs[i] = tracking.FramePair{
			Left:  wristFrame(hand.Left, r3.Vec{X: -0.2, Y: 0.28, Z: 1.1}),
			Right: wristFrame(hand.Right, target),
			Stamp: base.Add(time.Duration(i) * 20 * time.Millisecond),
		}
	}
	c, err := NewController(Config{Source: &scriptSource{pairs: pairs}, World: newScriptWorld()})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		c.step(ctx)
	}

	ee := c.hands[hand.Right].chain.EndEffector()
	if d := r3.Norm(r3.Sub(ee.Pos, target)); d > 0.02 {
		t.Fatalf("end effector %.4f m from target", d)
	}
	st := lastState(t, c)
	if !st.Right.Reachable {
		t.Fatal("target inside the reach sphere should be reachable")
	}
}

func TestTrackingLossFreezesOneHand(t *testing.T) {
	base := time.Now()
	pairs := restScript(base, 5)
	lost := restPair(base.Add(100 * time.Millisecond))
	lost.Left = hand.NewFrame(hand.Left)
	pairs = append(pairs, lost)

	sink := newCaptureSink()
	c, err := NewController(Config{Source: &scriptSource{pairs: pairs}, Sink: sink, World: newScriptWorld()})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.step(ctx)
	}
	frozen := c.hands[hand.Left].chain.AnglesByName()

	for i := 0; i < 5; i++ {
		c.step(ctx)
	}
	st := lastState(t, c)
	if st.Left.Tracked {
		t.Fatal("left should have lost tracking")
	}
	if !st.Right.Tracked {
		t.Fatal("right should still be tracking")
	}
	if n := len(sink.writes[hand.Left]); n != 5 {
		t.Fatalf("left written %d times, want 5 (none after the loss)", n)
	}
	if n := len(sink.writes[hand.Right]); n != 10 {
		t.Fatalf("right written %d times, want 10", n)
	}
	for name, v := range c.hands[hand.Left].chain.AnglesByName() {
		if v != frozen[name] {
			t.Fatalf("left %s moved during tracking loss", name)
		}
	}
}

func TestPoisonedWristTreatedAsLoss(t *testing.T) {
	base := time.Now()
	good := restPair(base)
	bad := restPair(base.Add(20 * time.Millisecond))
	bad.Right = wristFrame(hand.Right, r3.Vec{X: math.NaN(), Y: 0.25, Z: 1.1})

	sink := newCaptureSink()
	c, err := NewController(Config{
		Source: &scriptSource{pairs: []tracking.FramePair{good, bad}},
		Sink:   sink,
		World:  newScriptWorld(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	c.step(ctx)
	before := c.hands[hand.Right].chain.AnglesByName()

	c.step(ctx)
	st := lastState(t, c)
	if st.Right.Tracked {
		t.Fatal("non-finite wrist should count as tracking loss")
	}
	for name, v := range c.hands[hand.Right].chain.AnglesByName() {
		if v != before[name] {
			t.Fatalf("right %s moved on a poisoned frame", name)
		}
	}
	if n := len(sink.writes[hand.Right]); n != 1 {
		t.Fatalf("right written %d times, want 1", n)
	}
}

func TestMirrorSwapsHands(t *testing.T) {
	// Only the operator's right hand is visible.
	pair := tracking.FramePair{
		Left:  hand.NewFrame(hand.Left),
		Right: wristFrame(hand.Right, r3.Vec{X: 0.2, Y: 0.25, Z: 1.1}),
		Stamp: time.Now(),
	}
	sink := newCaptureSink()
	c, err := NewController(Config{
		Source: &scriptSource{pairs: []tracking.FramePair{pair}},
		Sink:   sink,
		World:  newScriptWorld(),
		Mirror: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.step(ctx)
	}

	st := lastState(t, c)
	if !st.Left.Tracked {
		t.Fatal("mirrored right hand should drive the left arm")
	}
	if st.Right.Tracked {
		t.Fatal("right pipeline should be idle in mirror mode")
	}
	if n := len(sink.writes[hand.Right]); n != 0 {
		t.Fatalf("right written %d times, want 0", n)
	}
	if n := len(sink.writes[hand.Left]); n != 3 {
		t.Fatalf("left written %d times, want 3", n)
	}
	if ee := c.hands[hand.Left].chain.EndEffector(); ee.Pos.X >= 0 {
		t.Fatalf("left end effector should sit on the mirrored side, got X=%v", ee.Pos.X)
	}
}

func TestContactGateBlendsArmOnly(t *testing.T) {
	base := time.Now()
	home := r3.Vec{X: 0.2, Y: 0.25, Z: 1.1}
	away := r3.Vec{X: 0.05, Y: 0.3, Z: 1.0}
	pairAt := func(i int, rightPos r3.Vec) tracking.FramePair {
		return tracking.FramePair{
			Left:  wristFrame(hand.Left, r3.Vec{X: -0.2, Y: 0.25, Z: 1.1}),
			Right: wristFrame(hand.Right, rightPos),
			Stamp: base.Add(time.Duration(i) * 20 * time.Millisecond),
		}
	}
	var pairs []tracking.FramePair
	for i := 0; i < 8; i++ {
		pairs = append(pairs, pairAt(i, home))
	}
	for i := 8; i < 20; i++ {
		pairs = append(pairs, pairAt(i, away))
	}

	world := newScriptWorld()
	sink := newCaptureSink()
	tun := DefaultTuning()
	tun.ContactGrace = 10 * time.Millisecond
	tun.SafeBlend = 1.0
	c, err := NewController(Config{Source: &scriptSource{pairs: pairs}, Sink: sink, World: world, Tuning: tun})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		c.step(ctx)
	}
	safe := sink.last(hand.Right)

	// Contact starts as the wrist moves; the first tick is inside the
	// grace period and passes through.
	world.contact = collision.Contact{Right: true}
	c.step(ctx)
	first := sink.last(hand.Right)
	moved := false
	for _, j := range c.hands[hand.Right].chain.Joints {
		if math.Abs(first[j.Name]-safe[j.Name]) > 1e-6 {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatal("grace period should pass motion through")
	}

	// The next tick is past the grace period; with full blend the arm
	// snaps back to the last collision-free angles.
	c.step(ctx)
	blended := sink.last(hand.Right)
	for _, j := range c.hands[hand.Right].chain.Joints {
		if math.Abs(blended[j.Name]-safe[j.Name]) > 1e-9 {
			t.Fatalf("%s = %v, want safe angle %v", j.Name, blended[j.Name], safe[j.Name])
		}
	}
	for _, j := range c.hands[hand.Right].handJoints {
		if _, ok := blended[j.Name]; !ok {
			t.Fatalf("hand joint %s gated out; curls should keep tracking", j.Name)
		}
	}
	st := lastState(t, c)
	if !st.Right.Contact {
		t.Fatal("right contact flag should be set")
	}
	if st.Left.Contact {
		t.Fatal("left should be clear")
	}

	// Clearing the contact resumes motion toward the wrist.
	world.contact = collision.Contact{}
	for i := 0; i < 4; i++ {
		c.step(ctx)
	}
	resumed := sink.last(hand.Right)
	moved = false
	for _, j := range c.hands[hand.Right].chain.Joints {
		if math.Abs(resumed[j.Name]-safe[j.Name]) > 1e-3 {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatal("motion should resume once contact clears")
	}
}

func TestReacquisitionSnapsToNewPose(t *testing.T) {
	base := time.Now()
	home := r3.Vec{X: 0.25, Y: 0.15, Z: 1.15}
	far := r3.Vec{X: 0.12, Y: 0.28, Z: 1.1}
	at := func(i int, f hand.Frame) tracking.FramePair {
		return tracking.FramePair{
			Left:  wristFrame(hand.Left, r3.Vec{X: -0.2, Y: 0.25, Z: 1.1}),
			Right: f,
			Stamp: base.Add(time.Duration(i) * 20 * time.Millisecond),
		}
	}
	var pairs []tracking.FramePair
	for i := 0; i < 6; i++ {
		pairs = append(pairs, at(i, wristFrame(hand.Right, home)))
	}
	for i := 6; i < 10; i++ {
		pairs = append(pairs, at(i, hand.NewFrame(hand.Right)))
	}
	for i := 10; i < 20; i++ {
		pairs = append(pairs, at(i, wristFrame(hand.Right, far)))
	}

	c, err := NewController(Config{Source: &scriptSource{pairs: pairs}, World: newScriptWorld()})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		c.step(ctx)
	}
	if st := lastState(t, c); !st.Right.Tracked {
		t.Fatal("right should be tracking before the gap")
	}

	for i := 0; i < 4; i++ {
		c.step(ctx)
	}
	if st := lastState(t, c); st.Right.Tracked {
		t.Fatal("right should be lost during the gap")
	}

	for i := 0; i < 10; i++ {
		c.step(ctx)
	}
	st := lastState(t, c)
	if !st.Right.Tracked {
		t.Fatal("right should re-acquire after the gap")
	}
	ee := c.hands[hand.Right].chain.EndEffector()
	if d := r3.Norm(r3.Sub(ee.Pos, far)); d > 0.02 {
		t.Fatalf("end effector %.4f m from the re-acquired wrist", d)
	}
}

func TestCurlAndAbductionMapping(t *testing.T) {
	for _, side := range hand.Sides() {
		h := newHandPipeline(side, DefaultTuning(), nil)
		h.shape = hand.Shape{
			ThumbAbduction: 1,
			ThumbCurl:      [2]float64{1, 1},
			IndexCurl:      [2]float64{0, 1},
			MiddleCurl:     [2]float64{0.5, 0},
		}
		got := h.commands()
		if len(got) != 14 {
			t.Fatalf("%s: %d joints, want 14", side, len(got))
		}

		// A full curl runs to the bound with the larger magnitude, so
		// negative-running distal servos end up negative.
		wants := map[string]float64{
			kinematics.ThumbProximalCurl:  1.6,
			kinematics.ThumbDistalCurl:    -1.7,
			kinematics.IndexProximalCurl:  0,
			kinematics.IndexDistalCurl:    -1.8,
			kinematics.MiddleProximalCurl: 0.85,
			kinematics.MiddleDistalCurl:   0,
		}
		for name, want := range wants {
			if v := got[name]; !near(v, want) {
				t.Fatalf("%s %s = %v, want %v", side, name, v, want)
			}
		}

		// Abduction is mirrored by handedness so both thumbs spread
		// away from the palm on a positive shape value.
		want := side.Sign() * 0.6
		if v := got[kinematics.ThumbAbduction]; !near(v, want) {
			t.Fatalf("%s abduction = %v, want %v", side, v, want)
		}
	}
}

func TestStepReportsReadError(t *testing.T) {
	sink := newCaptureSink()
	c, err := NewController(Config{
		Source: &scriptSource{err: errors.New("tracker offline")},
		Sink:   sink,
		World:  newScriptWorld(),
	})
	if err != nil {
		t.Fatal(err)
	}

	c.step(context.Background())
	st := lastState(t, c)
	if st.Error == nil {
		t.Fatal("state should carry the read error")
	}
	if n := len(sink.writes[hand.Left]) + len(sink.writes[hand.Right]); n != 0 {
		t.Fatalf("%d writes after a failed read, want 0", n)
	}
}

func TestSinkErrorDoesNotStopPipeline(t *testing.T) {
	sink := newCaptureSink()
	sink.err = errors.New("bus write failed")
	c, err := NewController(Config{
		Source: &scriptSource{pairs: restScript(time.Now(), 3)},
		Sink:   sink,
		World:  newScriptWorld(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.step(ctx)
	}
	st := lastState(t, c)
	if st.Error != nil {
		t.Fatalf("write failures should not surface as state errors: %v", st.Error)
	}
	if !st.Right.Tracked {
		t.Fatal("pipeline should keep tracking through write failures")
	}
	if n := len(sink.writes[hand.Right]); n != 3 {
		t.Fatalf("right attempted %d writes, want 3", n)
	}
}

func TestStateChannelKeepsLatest(t *testing.T) {
	c, err := NewController(Config{Source: &scriptSource{pairs: restScript(time.Now(), 1)}})
	if err != nil {
		t.Fatal(err)
	}

	t1 := time.Now()
	t2 := t1.Add(time.Second)
	c.sendState(State{Timestamp: t1})
	c.sendState(State{Timestamp: t2})

	st := <-c.States()
	if !st.Timestamp.Equal(t2) {
		t.Fatalf("got state from %v, want the newest %v", st.Timestamp, t2)
	}
}

func TestTickDt(t *testing.T) {
	c, err := NewController(Config{Source: &scriptSource{pairs: restScript(time.Now(), 1)}, Hz: 50})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	if dt := c.tickDt(base); dt != 0.02 {
		t.Fatalf("first tick dt = %v, want 1/hz", dt)
	}
	if dt := c.tickDt(base.Add(15 * time.Millisecond)); math.Abs(dt-0.015) > 1e-12 {
		t.Fatalf("dt = %v, want 0.015", dt)
	}
	if dt := c.tickDt(base.Add(10 * time.Second)); dt != maxTickDt {
		t.Fatalf("long gap dt = %v, want clamp %v", dt, maxTickDt)
	}
	if dt := c.tickDt(base.Add(10*time.Second + time.Microsecond)); dt != minTickDt {
		t.Fatalf("tiny gap dt = %v, want clamp %v", dt, minTickDt)
	}
	if dt := c.tickDt(base); dt != 0.02 {
		t.Fatalf("non-advancing stamp dt = %v, want 1/hz fallback", dt)
	}
}

func TestCloseClosesSource(t *testing.T) {
	src := &scriptSource{pairs: restScript(time.Now(), 1)}
	c, err := NewController(Config{Source: src})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !src.closed {
		t.Fatal("closing the controller should close the source")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	c, err := NewController(Config{
		Source: &scriptSource{pairs: restScript(time.Now(), 1)},
		World:  newScriptWorld(),
		Hz:     200,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	if err := c.Start(ctx); err == nil {
		t.Fatal("second start should fail while running")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("start returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("controller did not stop on cancel")
	}
}
