package mocks

import (
	"sync/atomic"
	"time"

	"github.com/user/screencap/pkg/pipeline"
)

// Clock is a manually advanced pipeline.Clock.
type Clock struct {
	now atomic.Int64
}

// NowUs returns the current fake time.
func (c *Clock) NowUs() int64 {
	return c.now.Load()
}

// Set moves the clock to an absolute time.
func (c *Clock) Set(us int64) {
	c.now.Store(us)
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.now.Add(d.Microseconds())
}

var _ pipeline.Clock = (*Clock)(nil)
