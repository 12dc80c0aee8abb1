package pipeline

import "time"

// Clock reports monotonic time in microseconds.
type Clock interface {
	NowUs() int64
}

var epoch = time.Now()

type systemClock struct{}

func (systemClock) NowUs() int64 {
	return time.Since(epoch).Microseconds()
}

// SystemClock measures time since process start on the monotonic clock.
var SystemClock Clock = systemClock{}
