package pipeline

// RateGate admits frames no faster than a maximum rate.
// It is not safe for concurrent use; each consumer owns one and calls it from
// the capture goroutine.
type RateGate struct {
	minIntervalUs int64
	lastUs        int64
	primed        bool
}

// NewRateGate creates a gate admitting at most maxFPS frames per second.
// A non-positive maxFPS admits every frame.
func NewRateGate(maxFPS int) *RateGate {
	g := &RateGate{}
	if maxFPS > 0 {
		g.minIntervalUs = 1_000_000 / int64(maxFPS)
	}
	return g
}

// Accept reports whether a frame arriving at nowUs should be kept.
func (g *RateGate) Accept(nowUs int64) bool {
	if g.primed && nowUs-g.lastUs < g.minIntervalUs {
		return false
	}
	g.lastUs = nowUs
	g.primed = true
	return true
}

// MinIntervalUs returns the minimum spacing between accepted frames.
func (g *RateGate) MinIntervalUs() int64 {
	return g.minIntervalUs
}
