package hand

import "math"

// ShapeDims is the number of scalar values in a Shape.
const ShapeDims = 7

// Shape is the normalized grasp description for the 3-finger effector.
// Curls run 0 (straight) to 1 (fully curled), index 0 proximal and 1
// distal. Thumb abduction runs -1 to 1 with 0 at the neutral rest
// spread; positive means spread away from the palm on a right hand.
type Shape struct {
	ThumbAbduction float64
	ThumbCurl      [2]float64
	IndexCurl      [2]float64
	MiddleCurl     [2]float64
}

// Clamped returns the shape with every value forced into its documented
// range. Non-finite values collapse to zero.
func (s Shape) Clamped() Shape {
	s.ThumbAbduction = clampFinite(s.ThumbAbduction, -1, 1)
	for i := 0; i < 2; i++ {
		s.ThumbCurl[i] = clampFinite(s.ThumbCurl[i], 0, 1)
		s.IndexCurl[i] = clampFinite(s.IndexCurl[i], 0, 1)
		s.MiddleCurl[i] = clampFinite(s.MiddleCurl[i], 0, 1)
	}
	return s
}

// Vector flattens the shape into the fixed order used by the smoothing
// window: abduction, then thumb, index, middle curl pairs.
func (s Shape) Vector() []float64 {
	return []float64{
		s.ThumbAbduction,
		s.ThumbCurl[0], s.ThumbCurl[1],
		s.IndexCurl[0], s.IndexCurl[1],
		s.MiddleCurl[0], s.MiddleCurl[1],
	}
}

// ShapeFromVector rebuilds a shape from the Vector order. Short inputs
// leave the remaining fields zero.
func ShapeFromVector(v []float64) Shape {
	var s Shape
	if len(v) > 0 {
		s.ThumbAbduction = v[0]
	}
	pairs := []*[2]float64{&s.ThumbCurl, &s.IndexCurl, &s.MiddleCurl}
	for i, p := range pairs {
		for j := 0; j < 2; j++ {
			idx := 1 + i*2 + j
			if idx < len(v) {
				p[j] = v[idx]
			}
		}
	}
	return s
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}
