package pipeline

import "sync"

const fpsWindowUs = 1_000_000

// FpsCounter counts events over a sliding one-second window.
type FpsCounter struct {
	mu    sync.Mutex
	clock Clock
	ring  []int64
	head  int
	size  int
}

// NewFpsCounter creates a counter reading time from clock.
func NewFpsCounter(clock Clock) *FpsCounter {
	if clock == nil {
		clock = SystemClock
	}
	return &FpsCounter{
		clock: clock,
		ring:  make([]int64, 16),
	}
}

// Record notes an event at the current time.
func (c *FpsCounter) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowUs()
	c.evict(now)
	if c.size == len(c.ring) {
		c.grow()
	}
	c.ring[(c.head+c.size)%len(c.ring)] = now
	c.size++
}

// Count returns the number of events in the last second.
func (c *FpsCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evict(c.clock.NowUs())
	return c.size
}

func (c *FpsCounter) evict(now int64) {
	for c.size > 0 && now-c.ring[c.head] >= fpsWindowUs {
		c.head = (c.head + 1) % len(c.ring)
		c.size--
	}
}

func (c *FpsCounter) grow() {
	next := make([]int64, len(c.ring)*2)
	for i := 0; i < c.size; i++ {
		next[i] = c.ring[(c.head+i)%len(c.ring)]
	}
	c.ring = next
	c.head = 0
}
