package observation

import "gonum.org/v1/gonum/stat"

// History is a fixed-capacity ring of observations, oldest evicted first.
// It is not safe for concurrent use; the owner serializes access.
type History struct {
	buf   []float64
	start int
	n     int
}

// NewHistory creates a history holding at most window observations.
func NewHistory(window int) *History {
	if window < 1 {
		window = 1
	}
	return &History{buf: make([]float64, window)}
}

// Push appends v, evicting the oldest observation when the window is full.
func (h *History) Push(v float64) {
	if h.n == len(h.buf) {
		h.buf[h.start] = v
		h.start = (h.start + 1) % len(h.buf)
		return
	}
	h.buf[(h.start+h.n)%len(h.buf)] = v
	h.n++
}

// Len returns the number of stored observations.
func (h *History) Len() int { return h.n }

// Cap returns the window size.
func (h *History) Cap() int { return len(h.buf) }

// Values returns the observations oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Smoothed returns the mean of the stored observations, or 0 when empty.
func (h *History) Smoothed() float64 {
	if h.n == 0 {
		return 0
	}
	return stat.Mean(h.Values(), nil)
}
