package filter

// MovingAverage smooths fixed-dimension samples over a sliding window
// with linearly decreasing weights, newest sample heaviest (weight n for
// the newest down to 1 for the oldest). Until the window fills the
// newest raw sample passes through unchanged, so startup and Reset
// never lag behind the stream.
type MovingAverage struct {
	dims   int
	window int
	buf    [][]float64
	head   int
	count  int
}

// NewMovingAverage returns a moving average over vectors of length dims
// with the given window size. Window sizes below 1 collapse to 1
// (passthrough).
func NewMovingAverage(dims, window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	if dims < 1 {
		dims = 1
	}
	buf := make([][]float64, window)
	for i := range buf {
		buf[i] = make([]float64, dims)
	}
	return &MovingAverage{dims: dims, window: window, buf: buf}
}

// Push adds a sample and returns the weighted average of the window,
// or the raw sample itself while the window is still filling. The
// sample is copied; the returned slice is freshly allocated. The
// sample length must equal the filter's dimension.
func (m *MovingAverage) Push(sample []float64) []float64 {
	copy(m.buf[m.head], sample)
	m.head = (m.head + 1) % m.window
	if m.count < m.window {
		m.count++
	}

	out := make([]float64, m.dims)
	if m.count < m.window {
		copy(out, sample)
		return out
	}
	start := (m.head - m.count + m.window) % m.window
	var wsum float64
	for i := 0; i < m.count; i++ {
		w := float64(i + 1)
		s := m.buf[(start+i)%m.window]
		for d := 0; d < m.dims; d++ {
			out[d] += w * s[d]
		}
		wsum += w
	}
	for d := 0; d < m.dims; d++ {
		out[d] /= wsum
	}
	return out
}

// Dims returns the sample dimension.
func (m *MovingAverage) Dims() int { return m.dims }

// Reset empties the window; the next sample passes through unchanged.
func (m *MovingAverage) Reset() {
	m.head = 0
	m.count = 0
}
