package framebus

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/user/screencap/pkg/adapters/logger"
	"github.com/user/screencap/pkg/mocks"
	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

type recordingConsumer struct {
	mu     sync.Mutex
	frames []pipeline.Frame
}

func (c *recordingConsumer) OnFrame(f pipeline.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f.Clone())
}

func (c *recordingConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func rawFrame(ts int64, shade uint8) *mocks.RawFrame {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = shade, shade, shade, 255
	}
	return &mocks.RawFrame{Timestamp: ts, Img: img}
}

func TestBus_FanOut(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	a, b := &recordingConsumer{}, &recordingConsumer{}
	bus.Register(a)
	bus.Register(b)
	bus.Register(a) // duplicate is ignored

	raws := []*mocks.RawFrame{rawFrame(1000, 10), rawFrame(2000, 20), rawFrame(3000, 30)}
	for _, raw := range raws {
		bus.OnRawFrame(raw)
	}

	if a.count() != 3 || b.count() != 3 {
		t.Fatalf("expected 3 frames per consumer, got %d and %d", a.count(), b.count())
	}
	for i, raw := range raws {
		if raw.Released() != 1 {
			t.Errorf("raw frame %d released %d times", i, raw.Released())
		}
		if a.frames[i].TimestampUs != raw.Timestamp {
			t.Errorf("frame %d: expected ts %d, got %d", i, raw.Timestamp, a.frames[i].TimestampUs)
		}
	}

	stats := bus.Stats()
	if stats.FramesReceived != 3 || stats.FramesDelivered != 3 || stats.Consumers != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBus_Unregister(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	a, b := &recordingConsumer{}, &recordingConsumer{}
	bus.Register(a)
	bus.Register(b)

	bus.OnRawFrame(rawFrame(1, 1))
	bus.Unregister(a)
	bus.OnRawFrame(rawFrame(2, 2))
	bus.Unregister(a) // unknown consumer is ignored

	if a.count() != 1 {
		t.Errorf("unregistered consumer received %d frames, expected 1", a.count())
	}
	if b.count() != 2 {
		t.Errorf("expected 2 frames, got %d", b.count())
	}
}

func TestBus_DecodeFailureReleasesRaw(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	c := &recordingConsumer{}
	bus.Register(c)

	raw := &mocks.RawFrame{Err: errors.New("corrupt")}
	bus.OnRawFrame(raw)

	if raw.Released() != 1 {
		t.Errorf("expected raw frame released once, got %d", raw.Released())
	}
	if c.count() != 0 {
		t.Error("consumer should not receive undecodable frames")
	}
	if bus.Stats().DecodeFailures != 1 {
		t.Errorf("expected 1 decode failure, got %d", bus.Stats().DecodeFailures)
	}
}

func TestBus_LastStill(t *testing.T) {
	bus := New(logger.NewNoop(), nil)

	if _, err := bus.LastStill(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}

	bus.OnRawFrame(rawFrame(1, 50))
	bus.OnRawFrame(rawFrame(2, 100))

	still, err := bus.LastStill()
	if err != nil {
		t.Fatalf("LastStill failed: %v", err)
	}
	if still.TimestampUs != 2 {
		t.Errorf("expected latest frame, got ts %d", still.TimestampUs)
	}
	if got := still.Pixels.RGBAAt(0, 0); got != (color.RGBA{100, 100, 100, 255}) {
		t.Errorf("unexpected pixel %v", got)
	}

	// The still is a copy
	still.Pixels.Pix[0] = 0
	again, _ := bus.LastStill()
	if again.Pixels.Pix[0] != 100 {
		t.Error("LastStill returned shared pixels")
	}

	bus.Reset()
	if _, err := bus.LastStill(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame after reset, got %v", err)
	}
}

func TestBus_CaptureFPS(t *testing.T) {
	clock := &mocks.Clock{}
	bus := New(logger.NewNoop(), clock)

	for i := 0; i < 30; i++ {
		bus.OnRawFrame(rawFrame(clock.NowUs(), 1))
		clock.Advance(33 * time.Millisecond)
	}
	if fps := bus.CaptureFPS(); fps != 30 {
		t.Errorf("expected 30 fps, got %d", fps)
	}
}

func TestBus_RegisterDuringDelivery(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				bus.OnRawFrame(rawFrame(int64(i), 1))
			}
		}
	}()

	for i := 0; i < 50; i++ {
		c := &recordingConsumer{}
		bus.Register(c)
		bus.Unregister(c)
	}
	close(stop)
	wg.Wait()

	if bus.Stats().Consumers != 0 {
		t.Errorf("expected no consumers, got %d", bus.Stats().Consumers)
	}
}

func TestBus_Run(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	c := &recordingConsumer{}
	bus.Register(c)

	source := &mocks.FrameSource{Width: 16, Height: 9}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx, source) }()

	deadline := time.Now().Add(time.Second)
	for !source.Started() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	source.Emit(rawFrame(1, 1))
	source.Emit(rawFrame(2, 1))
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !source.StopCalled {
		t.Error("source was not stopped")
	}
	if c.count() != 2 {
		t.Errorf("expected 2 frames, got %d", c.count())
	}
}

func TestBus_RunStartError(t *testing.T) {
	bus := New(logger.NewNoop(), nil)
	source := &mocks.FrameSource{
		StartFunc: func(context.Context, func(ports.RawFrame)) error { return errors.New("denied") },
	}
	if err := bus.Run(context.Background(), source); err == nil {
		t.Fatal("expected start error")
	}
	if err := bus.Run(context.Background(), nil); !errors.Is(err, ErrNilSource) {
		t.Errorf("expected ErrNilSource, got %v", err)
	}
}
