// Package framebus fans captured frames out to independent consumers.
//
// The bus converts each raw frame into a normalized RGBA frame exactly once,
// releases the raw frame back to the source, and hands the normalized frame
// to every registered consumer on the capture goroutine. Consumers copy what
// they keep and return immediately, so a slow consumer never stalls capture
// or its siblings.
package framebus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

var (
	// ErrNoFrame is returned by LastStill before the first frame arrives.
	ErrNoFrame = errors.New("framebus: no frame captured yet")

	// ErrNilSource is returned by Run without a source.
	ErrNilSource = errors.New("framebus: source is nil")
)

// Stats is a snapshot of bus counters.
type Stats struct {
	FramesReceived  uint64
	FramesDelivered uint64
	DecodeFailures  uint64
	Consumers       int
	CaptureFPS      int
}

// Bus distributes normalized frames to registered consumers.
type Bus struct {
	mu        sync.RWMutex
	consumers []pipeline.FrameConsumer

	last   *pipeline.Slot[pipeline.Frame]
	fps    *pipeline.FpsCounter
	logger ports.Logger

	received  atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

// New creates a bus. clock may be nil to use the system clock.
func New(logger ports.Logger, clock pipeline.Clock) *Bus {
	return &Bus{
		last:   pipeline.NewSlot(pipeline.ReleaseFrame),
		fps:    pipeline.NewFpsCounter(clock),
		logger: logger.WithComponent("framebus"),
	}
}

// Register adds a consumer. Registering the same consumer twice is a no-op.
func (b *Bus) Register(c pipeline.FrameConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing == c {
			return
		}
	}
	next := make([]pipeline.FrameConsumer, len(b.consumers), len(b.consumers)+1)
	copy(next, b.consumers)
	b.consumers = append(next, c)
	b.logger.Debug("Consumer registered: %d active", len(b.consumers))
}

// Unregister removes a consumer. Unknown consumers are ignored.
func (b *Bus) Unregister(c pipeline.FrameConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]pipeline.FrameConsumer, 0, len(b.consumers))
	for _, existing := range b.consumers {
		if existing != c {
			next = append(next, existing)
		}
	}
	b.consumers = next
	b.logger.Debug("Consumer unregistered: %d active", len(b.consumers))
}

func (b *Bus) snapshot() []pipeline.FrameConsumer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consumers
}

// OnRawFrame handles one raw frame from the capture source. It must be called
// from a single goroutine.
func (b *Bus) OnRawFrame(raw ports.RawFrame) {
	b.received.Add(1)
	b.fps.Record()

	img, err := raw.Image()
	if err != nil {
		raw.Release()
		b.failures.Add(1)
		b.logger.Warn("Failed to decode captured frame: %v", err)
		return
	}
	frame := pipeline.FromImage(raw.TimestampUs(), img)
	raw.Release()

	for _, c := range b.snapshot() {
		c.OnFrame(frame)
	}
	b.delivered.Add(1)

	b.last.Replace(frame)
}

// Run starts the source with the bus as its frame callback and blocks until
// ctx is cancelled, then stops the source.
func (b *Bus) Run(ctx context.Context, source ports.FrameSource) error {
	if source == nil {
		return ErrNilSource
	}
	if err := source.Start(ctx, b.OnRawFrame); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}

	w, h := source.Size()
	b.logger.Info("Capture started: %dx%d", w, h)

	<-ctx.Done()

	if err := source.Stop(); err != nil {
		return fmt.Errorf("failed to stop frame source: %w", err)
	}
	b.logger.Info("Capture stopped")
	return nil
}

// LastStill returns a copy of the most recent frame.
func (b *Bus) LastStill() (pipeline.Frame, error) {
	var out pipeline.Frame
	if !b.last.View(func(f pipeline.Frame) { out = f.Clone() }) {
		return pipeline.Frame{}, ErrNoFrame
	}
	return out, nil
}

// CaptureFPS returns frames received during the last second.
func (b *Bus) CaptureFPS() int {
	return b.fps.Count()
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		FramesReceived:  b.received.Load(),
		FramesDelivered: b.delivered.Load(),
		DecodeFailures:  b.failures.Load(),
		Consumers:       len(b.snapshot()),
		CaptureFPS:      b.fps.Count(),
	}
}

// Reset drops the cached last frame.
func (b *Bus) Reset() {
	b.last.Clear()
}
