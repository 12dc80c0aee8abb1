// Package h264encoder drives an ffmpeg H.264 encoder (hardware-backed where
// available) as a ports.HardwareEncoder. Raw frames are piped to ffmpeg's
// stdin and the Annex B stream on stdout is split back into access units.
package h264encoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/user/screencap/pkg/ports"
)

const (
	// inputSlots bounds frames submitted but not yet emitted.
	inputSlots = 8

	stopTimeout = 5 * time.Second
	stderrLimit = 4096
)

// Encoder implements ports.HardwareEncoder on top of an ffmpeg process.
type Encoder struct {
	codec      string
	ffmpegPath string
	logger     ports.Logger

	mu         sync.Mutex
	format     ports.EncoderFormat
	configured bool
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderr     *tailBuffer
	pts        []int64
	pending    *ports.OutputResult
	formatSent bool
	inClosed   bool
	waited     bool
	released   bool
	waitErr    error

	writeMu    sync.Mutex
	slots      chan struct{}
	outputs    chan accessUnit
	readerDone chan struct{}
}

// New creates an encoder that runs the given ffmpeg codec.
func New(codec, ffmpegPath string, logger ports.Logger) *Encoder {
	return &Encoder{
		codec:      codec,
		ffmpegPath: ffmpegPath,
		logger:     logger.WithComponent("h264encoder"),
	}
}

// Name returns the ffmpeg codec name.
func (e *Encoder) Name() string {
	return e.codec
}

// Configure validates and stores the stream format.
func (e *Encoder) Configure(format ports.EncoderFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if format.Mime != ports.MimeH264 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Mime)
	}
	if format.Width <= 0 || format.Height <= 0 || format.Width%2 != 0 || format.Height%2 != 0 {
		return fmt.Errorf("%w: %dx%d must be positive and even", ErrUnsupportedFormat, format.Width, format.Height)
	}
	if format.FrameRate <= 0 || format.Bitrate <= 0 {
		return fmt.Errorf("%w: frame rate and bitrate must be positive", ErrUnsupportedFormat)
	}
	e.format = format
	e.configured = true
	return nil
}

// Start launches ffmpeg.
func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.configured {
		return ErrNotConfigured
	}

	args := BuildArgs(e.codec, e.format)
	cmd := exec.Command(e.ffmpegPath, args...)
	e.stderr = &tailBuffer{limit: stderrLimit}
	cmd.Stderr = e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.slots = make(chan struct{}, inputSlots)
	for i := 0; i < inputSlots; i++ {
		e.slots <- struct{}{}
	}
	e.outputs = make(chan accessUnit, inputSlots*4)
	e.readerDone = make(chan struct{})

	go e.read(stdout)

	e.logger.Debug("ffmpeg started: %s %dx%d", e.codec, e.format.Width, e.format.Height)
	return nil
}

// read splits ffmpeg's output into access units until EOF.
func (e *Encoder) read(stdout io.Reader) {
	defer close(e.readerDone)
	defer close(e.outputs)

	var splitter auSplitter
	r := bufio.NewReaderSize(stdout, 64*1024)
	chunk := make([]byte, 64*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			for _, au := range splitter.feed(chunk[:n]) {
				e.outputs <- au
			}
		}
		if err != nil {
			break
		}
	}
	for _, au := range splitter.flush() {
		e.outputs <- au
	}
}

// DequeueInputSlot waits for room in the encoder pipeline.
func (e *Encoder) DequeueInputSlot(timeoutUs int64) (int, bool) {
	e.mu.Lock()
	slots := e.slots
	closed := e.inClosed
	e.mu.Unlock()
	if slots == nil || closed {
		return -1, false
	}

	select {
	case <-slots:
		return 0, true
	default:
	}
	if timeoutUs <= 0 {
		return -1, false
	}
	timer := time.NewTimer(time.Duration(timeoutUs) * time.Microsecond)
	defer timer.Stop()
	select {
	case <-slots:
		return 0, true
	case <-timer.C:
		return -1, false
	}
}

// Submit writes one raw frame to ffmpeg.
func (e *Encoder) Submit(slot int, data []byte, ptsUs int64, flags ports.BufferFlags) error {
	e.mu.Lock()
	if e.stdin == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.inClosed {
		e.mu.Unlock()
		return ErrInputClosed
	}
	want := frameSize(e.format)
	if len(data) != want {
		e.mu.Unlock()
		e.returnSlot()
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrInputSize, len(data), want)
	}
	e.pts = append(e.pts, ptsUs)
	stdin := e.stdin
	e.mu.Unlock()

	e.writeMu.Lock()
	_, err := stdin.Write(data)
	e.writeMu.Unlock()
	if err != nil {
		e.mu.Lock()
		e.pts = e.pts[:len(e.pts)-1]
		e.mu.Unlock()
		e.returnSlot()
		return fmt.Errorf("failed to write frame: %w: %s", err, e.stderr.String())
	}

	if flags&ports.FlagEndOfStream != 0 {
		return e.SignalEndOfStream()
	}
	return nil
}

func (e *Encoder) returnSlot() {
	select {
	case e.slots <- struct{}{}:
	default:
	}
}

// DequeueOutput returns the next encoder output, waiting up to timeoutUs.
func (e *Encoder) DequeueOutput(timeoutUs int64) (ports.OutputResult, error) {
	e.mu.Lock()
	if e.pending != nil {
		out := *e.pending
		e.pending = nil
		e.mu.Unlock()
		return out, nil
	}
	outputs := e.outputs
	e.mu.Unlock()

	if outputs == nil {
		return ports.OutputResult{}, ErrNotStarted
	}

	var au accessUnit
	var ok bool
	if timeoutUs <= 0 {
		select {
		case au, ok = <-outputs:
		default:
			return ports.OutputResult{Kind: ports.OutputTryAgain}, nil
		}
	} else {
		timer := time.NewTimer(time.Duration(timeoutUs) * time.Microsecond)
		defer timer.Stop()
		select {
		case au, ok = <-outputs:
		case <-timer.C:
			return ports.OutputResult{Kind: ports.OutputTryAgain}, nil
		}
	}
	if !ok {
		return ports.OutputResult{Kind: ports.OutputEndOfStream, Flags: ports.FlagEndOfStream}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	buf := ports.OutputResult{Kind: ports.OutputBuffer, Data: au.annexB()}
	if au.hasSlice {
		if len(e.pts) > 0 {
			buf.PtsUs = e.pts[0]
			e.pts = e.pts[1:]
		}
		e.returnSlot()
	} else {
		buf.Flags |= ports.FlagCodecConfig
	}
	if au.keyframe {
		buf.Flags |= ports.FlagKeyFrame
	}

	if !e.formatSent {
		sps, pps := au.parameterSets()
		if len(sps) > 0 && len(pps) > 0 {
			e.formatSent = true
			e.pending = &buf
			return ports.OutputResult{
				Kind: ports.OutputFormatChanged,
				Format: ports.TrackFormat{
					Mime:   ports.MimeH264,
					Width:  e.format.Width,
					Height: e.format.Height,
					SPS:    sps,
					PPS:    pps,
				},
			}, nil
		}
	}
	return buf, nil
}

// SignalEndOfStream closes ffmpeg's input so it flushes remaining frames.
func (e *Encoder) SignalEndOfStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotStarted
	}
	if e.inClosed {
		return nil
	}
	e.inClosed = true

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.stdin.Close()
}

// Stop closes the input and waits for ffmpeg to exit. Unread output is
// discarded.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if e.cmd == nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.SignalEndOfStream(); err != nil && !errors.Is(err, ErrNotStarted) {
		e.logger.Debug("Failed to close ffmpeg input: %v", err)
	}

	// Keep the reader moving so ffmpeg can finish writing
	go func() {
		for range e.outputs {
		}
	}()

	select {
	case <-e.readerDone:
	case <-time.After(stopTimeout):
		e.logger.Warn("ffmpeg did not exit in time, killing")
		e.kill()
	}
	return e.wait()
}

// Release kills ffmpeg if it is still running. Calling it twice is a no-op.
func (e *Encoder) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	started := e.cmd != nil
	e.mu.Unlock()

	if !started {
		return
	}
	e.kill()
	go func() {
		for range e.outputs {
		}
	}()
	e.wait()
}

func (e *Encoder) kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil && !e.waited {
		e.cmd.Process.Kill()
	}
}

func (e *Encoder) wait() error {
	<-e.readerDone

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.waited {
		return e.waitErr
	}
	e.waited = true
	if err := e.cmd.Wait(); err != nil && !e.released {
		e.waitErr = fmt.Errorf("ffmpeg %s failed: %w: %s", e.codec, err, e.stderr.String())
	}
	return e.waitErr
}

func frameSize(f ports.EncoderFormat) int {
	return f.Width*f.Height + f.Width*f.Height/2
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf.Bytes()))
}

var _ ports.HardwareEncoder = (*Encoder)(nil)
