// Package preview implements the low-latency preview consumer: frames are
// rate limited at intake, stale frames are dropped when newer ones are
// waiting, and the rest are scaled, JPEG compressed and handed to a
// PreviewTransport.
package preview

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("preview: already started")

	// ErrNotRunning is returned by still queries when the worker is not running.
	ErrNotRunning = errors.New("preview: not started")

	// ErrNoFrame is returned by still queries before the first frame is processed.
	ErrNoFrame = errors.New("preview: no frame available")
)

// Config holds preview tuning.
type Config struct {
	MaxFPS       int           // intake rate limit
	MaxDelay     time.Duration // frames older than this are dropped when newer ones wait
	Scale        float64       // downscale factor applied before compression
	JPEGQuality  int           // preview stream quality
	StillQuality int           // quality of LastStillJPEG
	PollTimeout  time.Duration // worker wake-up bound
	SendBuffer   int           // packets waiting for the transport
}

// DefaultConfig returns the standard preview settings.
func DefaultConfig() Config {
	return Config{
		MaxFPS:       10,
		MaxDelay:     300 * time.Millisecond,
		Scale:        0.8,
		JPEGQuality:  30,
		StillQuality: 100,
		PollTimeout:  time.Second,
		SendBuffer:   16,
	}
}

// Stats is a snapshot of preview counters.
type Stats struct {
	Accepted     uint64
	Gated        uint64
	StaleDropped uint64
	Sent         uint64
	Failed       uint64
	Queued       int
	InputFPS     int
	OutputFPS    int
}

// Pipeline is the preview consumer. It implements pipeline.FrameConsumer.
type Pipeline struct {
	config    Config
	codec     ports.StillCodec
	transport ports.PreviewTransport
	clock     pipeline.Clock
	logger    ports.Logger

	gate  *pipeline.RateGate
	queue *pipeline.FrameQueue
	last  *pipeline.Slot[pipeline.Frame]

	inFPS  *pipeline.FpsCounter
	outFPS *pipeline.FpsCounter

	started atomic.Bool
	running atomic.Bool
	quit    atomic.Bool

	packets chan ports.PreviewPacket
	done    chan struct{}
	wg      sync.WaitGroup

	accepted     atomic.Uint64
	gated        atomic.Uint64
	staleDropped atomic.Uint64
	sent         atomic.Uint64
	failed       atomic.Uint64
}

// New creates a preview pipeline. clock may be nil to use the system clock.
func New(config Config, codec ports.StillCodec, transport ports.PreviewTransport, clock pipeline.Clock, logger ports.Logger) *Pipeline {
	if clock == nil {
		clock = pipeline.SystemClock
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 1
	}
	return &Pipeline{
		config:    config,
		codec:     codec,
		transport: transport,
		clock:     clock,
		logger:    logger.WithComponent("preview"),
		gate:      pipeline.NewRateGate(config.MaxFPS),
		queue:     pipeline.NewFrameQueue(),
		last:      pipeline.NewSlot(pipeline.ReleaseFrame),
		inFPS:     pipeline.NewFpsCounter(clock),
		outFPS:    pipeline.NewFpsCounter(clock),
		packets:   make(chan ports.PreviewPacket, config.SendBuffer),
		done:      make(chan struct{}),
	}
}

// Start launches the worker and delivery goroutines.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.running.Store(true)

	p.wg.Add(2)
	go p.deliver()
	go p.work()

	p.logger.Debug("Preview started: %d fps max, %v max delay", p.config.MaxFPS, p.config.MaxDelay)
	return nil
}

// OnFrame is the intake. It runs on the capture goroutine and never blocks.
func (p *Pipeline) OnFrame(frame pipeline.Frame) {
	if p.quit.Load() {
		return
	}
	if !p.gate.Accept(p.clock.NowUs()) {
		p.gated.Add(1)
		return
	}
	p.accepted.Add(1)
	p.inFPS.Record()
	p.queue.Push(pipeline.QueuedFrame{
		TimestampUs: frame.TimestampUs,
		Frame:       frame.Clone(),
	})
}

// Quit stops intake and lets the worker exit at its next wake-up.
func (p *Pipeline) Quit() {
	if p.quit.Swap(true) {
		return
	}
	p.queue.Wake()
}

// Wait blocks until the worker and delivery goroutines have exited.
func (p *Pipeline) Wait() {
	if !p.started.Load() {
		return
	}
	<-p.done
	p.wg.Wait()
}

// Running reports whether the worker is processing frames.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) work() {
	defer p.wg.Done()
	defer func() {
		for _, item := range p.queue.Drain() {
			pipeline.ReleaseFrame(item.Frame)
		}
		p.last.Clear()
		p.running.Store(false)
		close(p.packets)
		close(p.done)
		p.logger.Debug("Preview stopped")
	}()

	for !p.quit.Load() {
		item, ok := p.queue.Pop(p.config.PollTimeout)
		if !ok {
			continue
		}
		if p.quit.Load() {
			pipeline.ReleaseFrame(item.Frame)
			return
		}
		p.process(item)
	}
}

func (p *Pipeline) process(item pipeline.QueuedFrame) {
	now := p.clock.NowUs()
	delay := time.Duration(now-item.TimestampUs) * time.Microsecond

	// A late frame is still shown when nothing newer is waiting
	if delay > p.config.MaxDelay && p.queue.Len() > 0 {
		p.staleDropped.Add(1)
		pipeline.ReleaseFrame(item.Frame)
		return
	}

	scaled := p.codec.Scale(item.Frame.Pixels, p.config.Scale)
	payload, err := p.codec.EncodeJPEG(scaled, p.config.JPEGQuality)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("Failed to encode preview frame: %v", err)
		pipeline.ReleaseFrame(item.Frame)
		return
	}

	packet := ports.PreviewPacket{
		CaptureTimestampMs: item.TimestampUs / 1000,
		SendTimestampMs:    p.clock.NowUs() / 1000,
		Payload:            payload,
	}
	p.last.Replace(item.Frame)

	select {
	case p.packets <- packet:
	default:
		p.failed.Add(1)
		p.logger.Debug("Preview transport busy, packet dropped")
	}
}

// deliver sends packets in order on its own goroutine so a slow transport
// never delays the worker.
func (p *Pipeline) deliver() {
	defer p.wg.Done()
	for packet := range p.packets {
		if err := p.transport.Send(packet); err != nil {
			p.failed.Add(1)
			p.logger.Warn("Failed to send preview frame: %v", err)
			continue
		}
		p.sent.Add(1)
		p.outFPS.Record()
	}
}

// LastStill returns the most recently sent frame at preview scale without
// compression.
func (p *Pipeline) LastStill() (*image.RGBA, error) {
	if !p.running.Load() {
		return nil, ErrNotRunning
	}
	var scaled *image.RGBA
	if !p.last.View(func(f pipeline.Frame) {
		scaled = p.codec.Scale(f.Pixels, p.config.Scale)
	}) {
		return nil, ErrNoFrame
	}
	return scaled, nil
}

// LastStillJPEG encodes LastStill at still quality.
func (p *Pipeline) LastStillJPEG() ([]byte, error) {
	img, err := p.LastStill()
	if err != nil {
		return nil, err
	}
	return p.codec.EncodeJPEG(img, p.config.StillQuality)
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:     p.accepted.Load(),
		Gated:        p.gated.Load(),
		StaleDropped: p.staleDropped.Load(),
		Sent:         p.sent.Load(),
		Failed:       p.failed.Load(),
		Queued:       p.queue.Len(),
		InputFPS:     p.inFPS.Count(),
		OutputFPS:    p.outFPS.Count(),
	}
}
