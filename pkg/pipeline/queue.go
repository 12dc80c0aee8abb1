package pipeline

import (
	"sync"
	"time"
)

// FrameQueue is an unbounded multi-producer single-consumer queue.
// Push never blocks; the consumer waits with Pop.
type FrameQueue struct {
	mu     sync.Mutex
	items  []QueuedFrame
	head   int
	signal chan struct{}
}

// NewFrameQueue creates an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{
		signal: make(chan struct{}, 1),
	}
}

// Push appends a frame and wakes the consumer.
func (q *FrameQueue) Push(item QueuedFrame) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.Wake()
}

// Wake interrupts a pending Pop without adding work.
func (q *FrameQueue) Wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame, waiting up to timeout for one to arrive.
// It returns false on timeout or when woken without work.
func (q *FrameQueue) Pop(timeout time.Duration) (QueuedFrame, bool) {
	if item, ok := q.TryPop(); ok {
		return item, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.signal:
	case <-timer.C:
	}
	return q.TryPop()
}

// TryPop removes the oldest frame without waiting.
func (q *FrameQueue) TryPop() (QueuedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return QueuedFrame{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = QueuedFrame{}
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Len returns the number of frames waiting.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Drain empties the queue and returns the removed frames.
func (q *FrameQueue) Drain() []QueuedFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedFrame, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}
