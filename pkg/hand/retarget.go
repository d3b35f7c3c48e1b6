package hand

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/handteleop/pkg/spatial"
)

// Segment lengths below this are treated as degenerate and skipped.
const minSegment = 1e-9

// CurlMethod selects how finger curl is measured from joint positions.
type CurlMethod int

// Curl measurement methods.
const (
	// CurlBendAngle derives each curl from the bend angle at one
	// articulation: straight reads ~pi, fully curled ~pi/3.
	CurlBendAngle CurlMethod = iota
	// CurlDistanceRatio derives one curl per finger from the
	// tip-to-metacarpal distance over the summed bone lengths.
	CurlDistanceRatio
)

// RetargetConfig tunes the hand-to-effector mapping.
type RetargetConfig struct {
	Method CurlMethod

	// Bend angles read as curl 0 and 1 (CurlBendAngle).
	StraightAngle float64
	BentAngle     float64

	// Distance ratios read as curl 0 and 1 (CurlDistanceRatio).
	StraightRatio float64
	FistRatio     float64

	// Thumb-to-index spread angle at rest and the angle swing that
	// maps to a full unit of abduction.
	NeutralSpread float64
	SpreadRange   float64
}

// DefaultRetargetConfig returns the mapping tuned for adult hands.
func DefaultRetargetConfig() RetargetConfig {
	return RetargetConfig{
		Method:        CurlBendAngle,
		StraightAngle: math.Pi,
		BentAngle:     math.Pi / 3,
		StraightRatio: 0.92,
		FistRatio:     0.30,
		NeutralSpread: 0.50,
		SpreadRange:   0.45,
	}
}

// Retargeter maps tracked hand frames onto effector shapes. Fields the
// current frame cannot measure keep their previous value, so partial
// occlusion does not twitch the fingers.
type Retargeter struct {
	cfg  RetargetConfig
	side Side
	last Shape
}

// NewRetargeter returns a retargeter for one hand. Config fields that
// would make a mapping non-monotonic fall back to their defaults.
func NewRetargeter(side Side, cfg RetargetConfig) *Retargeter {
	def := DefaultRetargetConfig()
	if !(cfg.StraightAngle > cfg.BentAngle) || cfg.BentAngle < 0 {
		cfg.StraightAngle = def.StraightAngle
		cfg.BentAngle = def.BentAngle
	}
	if !(cfg.StraightRatio > cfg.FistRatio) || cfg.FistRatio < 0 {
		cfg.StraightRatio = def.StraightRatio
		cfg.FistRatio = def.FistRatio
	}
	if !(cfg.SpreadRange > 0) {
		cfg.NeutralSpread = def.NeutralSpread
		cfg.SpreadRange = def.SpreadRange
	}
	return &Retargeter{cfg: cfg, side: side}
}

// Update measures the frame and returns the new shape. The result is
// always clamped into the documented ranges.
func (r *Retargeter) Update(f Frame) Shape {
	s := r.last

	switch r.cfg.Method {
	case CurlDistanceRatio:
		if c, ok := r.ratioCurl(f, FingerThumb); ok {
			s.ThumbCurl[0], s.ThumbCurl[1] = c, c
		}
		if c, ok := r.ratioCurl(f, FingerIndex); ok {
			s.IndexCurl[0], s.IndexCurl[1] = c, c
		}
		if c, ok := r.ratioCurl(f, FingerMiddle); ok {
			s.MiddleCurl[0], s.MiddleCurl[1] = c, c
		}
	default:
		if c, ok := r.bendCurl(f, ThumbMetacarpal, ThumbProximal, ThumbDistal); ok {
			s.ThumbCurl[0] = c
		}
		if c, ok := r.bendCurl(f, ThumbProximal, ThumbDistal, ThumbTip); ok {
			s.ThumbCurl[1] = c
		}
		if c, ok := r.bendCurl(f, IndexMetacarpal, IndexProximal, IndexIntermediate); ok {
			s.IndexCurl[0] = c
		}
		if c, ok := r.bendCurl(f, IndexProximal, IndexIntermediate, IndexDistal); ok {
			s.IndexCurl[1] = c
		}
		if c, ok := r.bendCurl(f, MiddleMetacarpal, MiddleProximal, MiddleIntermediate); ok {
			s.MiddleCurl[0] = c
		}
		if c, ok := r.bendCurl(f, MiddleProximal, MiddleIntermediate, MiddleDistal); ok {
			s.MiddleCurl[1] = c
		}
	}

	if a, ok := r.abduction(f); ok {
		s.ThumbAbduction = a
	}

	s = s.Clamped()
	r.last = s
	return s
}

// Reset returns the retargeter to the neutral shape.
func (r *Retargeter) Reset() {
	r.last = Shape{}
}

// Last returns the most recent shape.
func (r *Retargeter) Last() Shape {
	return r.last
}

// bendCurl measures the curl at articulation b of the triple a-b-c.
func (r *Retargeter) bendCurl(f Frame, a, b, c JointName) (float64, bool) {
	pa, oka := f.Position(a)
	pb, okb := f.Position(b)
	pc, okc := f.Position(c)
	if !oka || !okb || !okc {
		return 0, false
	}
	angle, ok := angleBetween(r3.Sub(pa, pb), r3.Sub(pc, pb))
	if !ok {
		return 0, false
	}
	curl := (r.cfg.StraightAngle - angle) / (r.cfg.StraightAngle - r.cfg.BentAngle)
	return clamp01(curl), true
}

// ratioCurl measures a whole finger's curl from how far its tip sits
// from the metacarpal relative to the summed bone lengths.
func (r *Retargeter) ratioCurl(f Frame, fg Finger) (float64, bool) {
	chain := FingerChain(fg)
	pts := make([]r3.Vec, 0, len(chain))
	for _, name := range chain {
		p, ok := f.Position(name)
		if !ok || !spatial.Finite(p) {
			return 0, false
		}
		pts = append(pts, p)
	}

	var total float64
	for i := 1; i < len(pts); i++ {
		total += r3.Norm(r3.Sub(pts[i], pts[i-1]))
	}
	if total < minSegment {
		return 0, false
	}

	ratio := r3.Norm(r3.Sub(pts[len(pts)-1], pts[0])) / total
	curl := (r.cfg.StraightRatio - ratio) / (r.cfg.StraightRatio - r.cfg.FistRatio)
	return clamp01(curl), true
}

// abduction measures the thumb spread from the angle between the
// wrist-to-index-metacarpal and wrist-to-thumb-proximal directions.
// The angle itself is mirror-invariant, so the side sign is applied
// here to keep mirrored gestures sign-mirrored.
func (r *Retargeter) abduction(f Frame) (float64, bool) {
	w, okw := f.Position(Wrist)
	im, oki := f.Position(IndexMetacarpal)
	tp, okt := f.Position(ThumbProximal)
	if !okw || !oki || !okt {
		return 0, false
	}
	angle, ok := angleBetween(r3.Sub(im, w), r3.Sub(tp, w))
	if !ok {
		return 0, false
	}
	raw := (angle - r.cfg.NeutralSpread) / r.cfg.SpreadRange
	raw *= r.side.Sign()
	return math.Min(math.Max(raw, -1), 1), true
}

// FingerCurls measures every finger with the distance-ratio method
// using the default thresholds, for diagnostics. Fingers the frame
// cannot measure report -1.
func FingerCurls(f Frame) map[Finger]float64 {
	r := Retargeter{cfg: DefaultRetargetConfig()}
	out := make(map[Finger]float64, 5)
	for _, fg := range Fingers() {
		if c, ok := r.ratioCurl(f, fg); ok {
			out[fg] = c
		} else {
			out[fg] = -1
		}
	}
	return out
}

func angleBetween(u, v r3.Vec) (float64, bool) {
	if !spatial.Finite(u) || !spatial.Finite(v) {
		return 0, false
	}
	nu := r3.Norm(u)
	nv := r3.Norm(v)
	if nu < minSegment || nv < minSegment {
		return 0, false
	}
	cos := r3.Dot(u, v) / (nu * nv)
	cos = math.Min(math.Max(cos, -1), 1)
	return math.Acos(cos), true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
