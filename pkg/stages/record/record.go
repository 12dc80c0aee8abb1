// Package record implements the recording consumer. Frames are queued at
// intake and a single encode loop converts them to NV12, feeds a hardware
// H.264 encoder and writes its output into a container through a Muxer.
package record

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

// Config holds recorder settings.
type Config struct {
	Width            int // encoded width, even
	Height           int // encoded height, even
	FrameRate        int
	KeyFrameInterval int // seconds
	BitsPerPixel     int // bitrate = BitsPerPixel * Width * Height
	PollTimeout      time.Duration
	CodecTimeoutUs   int64         // input slot and output wait
	TryAgainDelay    time.Duration // back-off when the encoder has no output
	DrainAttempts    int           // output polls after end of stream
}

// DefaultConfig returns the standard recorder settings for the given size.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:            width,
		Height:           height,
		FrameRate:        30,
		KeyFrameInterval: 5,
		BitsPerPixel:     12,
		PollTimeout:      100 * time.Millisecond,
		CodecTimeoutUs:   10_000,
		TryAgainDelay:    10 * time.Millisecond,
		DrainAttempts:    100,
	}
}

// Bitrate returns the target bitrate in bits per second.
func (c Config) Bitrate() int {
	return c.BitsPerPixel * c.Width * c.Height
}

// Pipeline is the recording consumer. It implements pipeline.FrameConsumer
// and can run any number of sessions one after another.
type Pipeline struct {
	config     Config
	selector   ports.EncoderSelector
	muxers     ports.MuxerFactory
	fs         ports.FileSystem
	clock      pipeline.Clock
	logger     ports.Logger
	onComplete func(path string)
	onFailure  func(Result)

	mu      sync.Mutex
	state   State
	session *Session
	result  Result
	done    chan struct{}

	queue     atomic.Pointer[pipeline.FrameQueue]
	accepting atomic.Bool
	noMore    atomic.Bool
	abort     atomic.Bool

	encoded atomic.Int64
	dropped atomic.Int64
	samples atomic.Int64
	fps     *pipeline.FpsCounter
}

// New creates a recorder. clock may be nil to use the system clock.
// onComplete, if set, is called with the output path after each completed
// (not aborted or failed) session.
func New(config Config, selector ports.EncoderSelector, muxers ports.MuxerFactory, fs ports.FileSystem, clock pipeline.Clock, logger ports.Logger, onComplete func(path string)) *Pipeline {
	if clock == nil {
		clock = pipeline.SystemClock
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 100 * time.Millisecond
	}
	if config.DrainAttempts <= 0 {
		config.DrainAttempts = 1
	}
	p := &Pipeline{
		config:     config,
		selector:   selector,
		muxers:     muxers,
		fs:         fs,
		clock:      clock,
		logger:     logger.WithComponent("recorder"),
		onComplete: onComplete,
		fps:        pipeline.NewFpsCounter(clock),
	}
	p.queue.Store(pipeline.NewFrameQueue())
	return p
}

// OnFailure sets a callback invoked from the encode loop when a running
// session fails. The output file has already been removed by then.
func (p *Pipeline) OnFailure(fn func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailure = fn
}

// Start opens a session writing to outputPath and launches the encode loop.
// Setup failures release whatever was configured and are returned here.
func (p *Pipeline) Start(outputPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Active() {
		return ErrAlreadyStarted
	}
	previous := p.state
	p.state = StateConfiguring

	encoder, err := p.selector.SelectEncoder(ports.MimeH264)
	if err != nil {
		p.state = previous
		return fmt.Errorf("%w: %v", ErrNoEncoder, err)
	}

	format := ports.EncoderFormat{
		Mime:             ports.MimeH264,
		Width:            p.config.Width,
		Height:           p.config.Height,
		Bitrate:          p.config.Bitrate(),
		FrameRate:        p.config.FrameRate,
		KeyFrameInterval: p.config.KeyFrameInterval,
		ColorFormat:      ports.ColorFormatNV12,
	}
	if err := encoder.Configure(format); err != nil {
		encoder.Release()
		return p.failSetup(outputPath, fmt.Errorf("failed to configure encoder %s: %w", encoder.Name(), err))
	}
	if err := encoder.Start(); err != nil {
		encoder.Release()
		return p.failSetup(outputPath, fmt.Errorf("failed to start encoder %s: %w", encoder.Name(), err))
	}

	muxer, err := p.muxers.Create(outputPath)
	if err != nil {
		encoder.Stop()
		encoder.Release()
		return p.failSetup(outputPath, fmt.Errorf("failed to create muxer: %w", err))
	}

	session := &Session{
		ID:               uuid.NewString(),
		Width:            format.Width,
		Height:           format.Height,
		Bitrate:          format.Bitrate,
		TrackIndex:       -1,
		StartTimestampUs: p.clock.NowUs(),
		OutputPath:       outputPath,
		Encoder:          encoder.Name(),
		StartedAt:        time.Now(),
	}

	p.session = session
	p.result = Result{}
	p.done = make(chan struct{})
	p.encoded.Store(0)
	p.dropped.Store(0)
	p.samples.Store(0)
	p.noMore.Store(false)
	p.abort.Store(false)

	// Each session gets its own queue so late frames of a finished session
	// never leak into the next one
	queue := pipeline.NewFrameQueue()
	p.queue.Store(queue)
	p.state = StateEncoding
	p.accepting.Store(true)

	l := &loop{
		p:       p,
		queue:   queue,
		session: session,
		encoder: encoder,
		muxer:   muxer,
		lastPts: -1,
	}
	go l.run(p.done)

	p.logger.Info("Recording started: %s (%dx%d, %d bps, %s)", outputPath, format.Width, format.Height, format.Bitrate, encoder.Name())
	return nil
}

func (p *Pipeline) failSetup(path string, err error) error {
	p.state = StateFailed
	p.result = Result{State: StateFailed, Path: path, Err: err}
	p.logger.Error("Recording setup failed: %v", err)
	return err
}

// OnFrame queues a copy of frame while a session is encoding.
func (p *Pipeline) OnFrame(frame pipeline.Frame) {
	if !p.accepting.Load() {
		return
	}
	p.queue.Load().Push(pipeline.QueuedFrame{
		TimestampUs: frame.TimestampUs,
		Frame:       frame.Clone(),
	})
}

// Stop ends intake; the encode loop drains queued frames, finalizes the file
// and invokes the completion callback. Use Wait to block until it is done.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateEncoding {
		return ErrNotRecording
	}
	p.state = StateDraining
	p.accepting.Store(false)
	p.noMore.Store(true)
	queue := p.queue.Load()
	queue.Wake()

	p.logger.Debug("Recording stop requested, %d frames queued", queue.Len())
	return nil
}

// Abort ends the session immediately, discarding queued frames and deleting
// the output file.
func (p *Pipeline) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateEncoding && p.state != StateDraining {
		return ErrNotRecording
	}
	p.state = StateDraining
	p.accepting.Store(false)
	p.noMore.Store(true)
	p.abort.Store(true)
	queue := p.queue.Load()
	for _, item := range queue.Drain() {
		pipeline.ReleaseFrame(item.Frame)
	}
	queue.Wake()

	p.logger.Debug("Recording abort requested")
	return nil
}

// Wait blocks until the current session's encode loop has exited.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Recording reports whether a session is active.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Active()
}

// Result returns the outcome of the most recent finished session.
func (p *Pipeline) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Status returns a snapshot of the recorder.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:          p.state,
		Queued:         p.queue.Load().Len(),
		FramesEncoded:  p.encoded.Load(),
		FramesDropped:  p.dropped.Load(),
		SamplesWritten: p.samples.Load(),
		EncodeFPS:      p.fps.Count(),
	}
	if p.session != nil {
		s := *p.session
		s.FrameIndex = p.encoded.Load()
		st.Session = &s
	}
	return st
}

// finish records the outcome of a session. Called by the encode loop.
func (p *Pipeline) finish(queue *pipeline.FrameQueue, session *Session, state State, err error) (Result, func(Result)) {
	p.mu.Lock()
	p.state = state
	p.accepting.Store(false)
	p.result = Result{
		State:          state,
		Path:           session.OutputPath,
		FramesEncoded:  p.encoded.Load(),
		SamplesWritten: p.samples.Load(),
		Duration:       time.Since(session.StartedAt),
		Err:            err,
	}
	result, onFailure := p.result, p.onFailure
	p.mu.Unlock()

	// Frames pushed between the last poll and the state change
	for _, item := range queue.Drain() {
		pipeline.ReleaseFrame(item.Frame)
	}
	return result, onFailure
}

// loop owns the encoder and muxer of one session.
type loop struct {
	p       *Pipeline
	queue   *pipeline.FrameQueue
	session *Session
	encoder ports.HardwareEncoder
	muxer   ports.Muxer

	track     int
	started   bool
	lastPts   int64
	scaled    *image.RGBA
	nv12      []byte
	fatal     error
	released  bool
	encodeEOS bool
}

func (l *loop) run(done chan struct{}) {
	defer close(done)
	p := l.p
	l.track = -1

	for {
		if p.abort.Load() {
			break
		}
		item, ok := l.queue.Pop(p.config.PollTimeout)
		if !ok {
			if p.noMore.Load() && l.queue.Len() == 0 {
				break
			}
			continue
		}
		if p.abort.Load() {
			pipeline.ReleaseFrame(item.Frame)
			break
		}

		l.encode(item)
		if err := l.drain(); err != nil {
			l.fatal = err
			break
		}
	}

	aborted := p.abort.Load()
	if !aborted && l.fatal == nil {
		l.flush()
	}
	if !aborted && l.fatal == nil && !l.started {
		l.fatal = ErrNoFrames
	}
	releaseErr := l.release()

	switch {
	case aborted:
		if err := p.fs.Remove(l.session.OutputPath); err != nil {
			p.logger.Warn("Failed to delete aborted recording %s: %v", l.session.OutputPath, err)
		}
		p.finish(l.queue, l.session, StateAborted, nil)
		p.logger.Info("Recording aborted: %s", l.session.OutputPath)

	case l.fatal != nil || releaseErr != nil:
		err := errors.Join(l.fatal, releaseErr)
		if rmErr := p.fs.Remove(l.session.OutputPath); rmErr != nil {
			p.logger.Warn("Failed to delete failed recording %s: %v", l.session.OutputPath, rmErr)
		}
		result, onFailure := p.finish(l.queue, l.session, StateFailed, err)
		p.logger.Error("Recording failed: %v", err)
		if onFailure != nil {
			onFailure(result)
		}

	default:
		p.finish(l.queue, l.session, StateCompleted, nil)
		p.logger.Info("Recording completed: %s (%d frames, %d samples)", l.session.OutputPath, p.encoded.Load(), p.samples.Load())
		if p.onComplete != nil {
			p.onComplete(l.session.OutputPath)
		}
	}
}

// encode converts one frame and submits it to the encoder.
func (l *loop) encode(item pipeline.QueuedFrame) {
	p := l.p
	l.convert(item.Frame)
	pipeline.ReleaseFrame(item.Frame)

	pts := item.TimestampUs - l.session.StartTimestampUs
	if pts < 0 {
		pts = 0
	}
	if pts <= l.lastPts {
		pts = l.lastPts + 1
	}

	slot, ok := l.encoder.DequeueInputSlot(p.config.CodecTimeoutUs)
	if !ok {
		p.dropped.Add(1)
		p.logger.Debug("No encoder input slot, frame dropped")
		return
	}
	if err := l.encoder.Submit(slot, l.nv12, pts, 0); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("Failed to submit frame to encoder: %v", err)
		return
	}
	l.lastPts = pts
	p.encoded.Add(1)
	p.fps.Record()
}

// convert scales the frame to the session size when needed and fills l.nv12.
func (l *loop) convert(frame pipeline.Frame) {
	w, h := l.session.Width, l.session.Height
	if l.nv12 == nil {
		l.nv12 = make([]byte, nv12Size(w, h))
	}

	src := frame.Pixels
	if frame.Width != w || frame.Height != h {
		if l.scaled == nil {
			l.scaled = image.NewRGBA(image.Rect(0, 0, w, h))
		}
		draw.ApproxBiLinear.Scale(l.scaled, l.scaled.Bounds(), frame.Pixels, frame.Pixels.Bounds(), draw.Src, nil)
		src = l.scaled
	}
	rgbaToNV12(l.nv12, src)
}

// drain moves all currently available encoder output into the muxer.
// It returns an error only for failures that end the session.
func (l *loop) drain() error {
	p := l.p
	for {
		out, err := l.encoder.DequeueOutput(p.config.CodecTimeoutUs)
		if err != nil {
			p.logger.Warn("Unexpected encoder output: %v", err)
			return nil
		}

		switch out.Kind {
		case ports.OutputTryAgain:
			time.Sleep(p.config.TryAgainDelay)
			return nil

		case ports.OutputFormatChanged:
			if l.started {
				p.logger.Warn("Encoder format changed after muxer start, ignored")
				continue
			}
			track, err := l.muxer.AddTrack(out.Format)
			if err != nil {
				return fmt.Errorf("failed to add track: %w", err)
			}
			if err := l.muxer.Start(); err != nil {
				return fmt.Errorf("failed to start muxer: %w", err)
			}
			l.track = track
			l.started = true
			p.mu.Lock()
			l.session.TrackIndex = track
			p.mu.Unlock()
			p.logger.Debug("Muxer started: track %d, %dx%d", track, out.Format.Width, out.Format.Height)

		case ports.OutputBuffer:
			if out.Flags&ports.FlagCodecConfig != 0 || len(out.Data) == 0 || !l.started {
				continue
			}
			info := ports.SampleInfo{PtsUs: out.PtsUs, Flags: out.Flags}
			if err := l.muxer.WriteSample(l.track, out.Data, info); err != nil {
				p.logger.Warn("Failed to write sample: %v", err)
				continue
			}
			p.samples.Add(1)

		case ports.OutputEndOfStream:
			l.encodeEOS = true
			return nil
		}
	}
}

// flush signals end of stream and drains the remaining output so the tail
// of the recording reaches the muxer.
func (l *loop) flush() {
	p := l.p
	if err := l.encoder.SignalEndOfStream(); err != nil {
		p.logger.Warn("Failed to signal end of stream: %v", err)
		return
	}
	for i := 0; i < p.config.DrainAttempts && !l.encodeEOS; i++ {
		if err := l.drain(); err != nil {
			l.fatal = err
			return
		}
	}
	if !l.encodeEOS {
		p.logger.Warn("Encoder did not reach end of stream, tail may be missing")
	}
}

// release stops and frees the encoder and muxer. Every step is attempted
// even if an earlier one fails.
func (l *loop) release() error {
	if l.released {
		return nil
	}
	l.released = true

	var errs []error
	if err := l.encoder.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop encoder: %w", err))
	}
	l.encoder.Release()

	if l.started {
		if err := l.muxer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop muxer: %w", err))
		}
	}
	l.muxer.Release()

	return errors.Join(errs...)
}
