// Package orchestrator is the host bridge: it owns the capture session and
// wires the frame bus to the preview and record consumers. Every operation
// returns a Result and never panics across the boundary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/screencap/pkg/framebus"
	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
	"github.com/user/screencap/pkg/stages/preview"
	"github.com/user/screencap/pkg/stages/record"
)

var (
	// ErrFileExists is reported when an output path is already taken.
	ErrFileExists = errors.New("orchestrator: file exists")

	// ErrPermissionDenied is returned by a SourceProvider when the user
	// refuses capture.
	ErrPermissionDenied = errors.New("orchestrator: permission denied")
)

// Config contains all configuration for the orchestrator.
type Config struct {
	Preview preview.Config
	// Record supplies everything but the frame size, which is derived
	// from the source.
	Record      record.Config
	RecordWidth int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Preview:     preview.DefaultConfig(),
		Record:      record.DefaultConfig(0, 0),
		RecordWidth: 720,
	}
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Sources   ports.SourceProvider
	Codec     ports.StillCodec
	Transport ports.PreviewTransport
	Encoders  ports.EncoderSelector
	Muxers    ports.MuxerFactory
	FS        ports.FileSystem
	Clock     pipeline.Clock
	Logger    ports.Logger
}

// Orchestrator implements the host bridge operations.
type Orchestrator struct {
	config Config
	deps   Deps
	logger ports.Logger

	mu       sync.Mutex
	running  bool
	source   ports.FrameSource
	cancel   context.CancelFunc
	bus      *framebus.Bus
	preview  *preview.Pipeline
	recorder *record.Pipeline
	// reported is set once the outcome of the recorder's latest session
	// has been returned to the host.
	reported bool
}

// New creates an orchestrator.
func New(config Config, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = pipeline.SystemClock
	}
	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: deps.Logger.WithComponent("orchestrator"),
	}
}

// Start acquires a capture source and starts previewing. Calling it while
// already running succeeds without side effects.
func (o *Orchestrator) Start(ctx context.Context) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return result(CodeOK, "start failed, already started", nil)
	}

	source, err := o.deps.Sources.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			o.logger.Warn("Capture permission denied")
			return failure("permission denied")
		}
		o.logger.Error("Failed to acquire capture source: %v", err)
		return failure("start failed: " + err.Error())
	}

	bus := framebus.New(o.deps.Logger, o.deps.Clock)
	pv := preview.New(o.config.Preview, o.deps.Codec, o.deps.Transport, o.deps.Clock, o.deps.Logger)
	if err := pv.Start(); err != nil {
		return failure("start failed: " + err.Error())
	}
	bus.Register(pv)

	srcW, srcH := source.Size()
	recCfg := o.config.Record
	recCfg.Width, recCfg.Height = record.FrameSize(srcW, srcH, o.config.RecordWidth)
	recorder := record.New(recCfg, o.deps.Encoders, o.deps.Muxers, o.deps.FS, o.deps.Clock, o.deps.Logger, func(path string) {
		o.logger.Info("Recorder complete: %s", path)
	})
	recorder.OnFailure(func(res record.Result) {
		bus.Unregister(recorder)
		o.logger.Warn("Recorder failed: %s: %v", res.Path, res.Err)
	})

	runCtx, cancel := context.WithCancel(context.Background())
	if err := source.Start(runCtx, bus.OnRawFrame); err != nil {
		cancel()
		bus.Unregister(pv)
		pv.Quit()
		pv.Wait()
		o.logger.Error("Failed to start capture: %v", err)
		return failure("start failed: " + err.Error())
	}

	o.source = source
	o.cancel = cancel
	o.bus = bus
	o.preview = pv
	o.recorder = recorder
	o.reported = true
	o.running = true

	o.logger.Info("Capture started: %dx%d, recording size %dx%d", srcW, srcH, recCfg.Width, recCfg.Height)
	return success(nil)
}

// Stop ends capture. An active recording is completed and the preview
// worker quits.
func (o *Orchestrator) Stop() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return failure("stop failed: not previewing")
	}

	if err := o.source.Stop(); err != nil {
		o.logger.Warn("Failed to stop capture source: %v", err)
	}
	o.cancel()

	o.bus.Unregister(o.recorder)
	if o.recorder.Recording() {
		if err := o.recorder.Stop(); err != nil {
			o.logger.Warn("Failed to stop recording: %v", err)
		}
		o.recorder.Wait()
	}
	if res := o.recorder.Result(); !o.reported && res.State == record.StateFailed {
		o.logger.Error("Recording failed on capture stop: %v", res.Err)
	}
	o.reported = true

	o.bus.Unregister(o.preview)
	o.preview.Quit()
	o.preview.Wait()
	o.bus.Reset()

	o.running = false
	o.source = nil
	o.logger.Info("Capture stopped")
	return success(nil)
}

// Status reports whether capture and recording are active.
func (o *Orchestrator) Status() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	return success(StatusData{
		Recording:  o.running && o.recorder.Recording(),
		Previewing: o.running && o.preview.Running(),
	})
}

// StartRecording creates path and starts a recording session into it.
func (o *Orchestrator) StartRecording(path string) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.recorder != nil && o.recorder.Recording() {
		return failure("start failed, already started")
	}
	if !o.running {
		return failure("start failed: service not started")
	}

	abs, err := o.prepareTarget(path)
	if err != nil {
		return failure("start failed: " + err.Error())
	}

	if err := o.recorder.Start(abs); err != nil {
		o.reported = true
		if rmErr := o.deps.FS.Remove(abs); rmErr != nil {
			o.logger.Warn("Failed to remove %s: %v", abs, rmErr)
		}
		return failure("start failed: " + err.Error())
	}
	o.reported = false
	o.bus.Register(o.recorder)

	return success(PathData{Path: abs})
}

// StopRecording completes the active recording and waits for the file to
// be finalized.
func (o *Orchestrator) StopRecording() Result {
	return o.endRecording(false)
}

// AbortRecording ends the active recording and deletes its file.
func (o *Orchestrator) AbortRecording() Result {
	return o.endRecording(true)
}

func (o *Orchestrator) endRecording(abort bool) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := "stop"
	if abort {
		op = "abort"
	}
	if o.recorder == nil {
		return failure(op + " failed: not recording")
	}

	if o.recorder.Recording() {
		o.bus.Unregister(o.recorder)
		var err error
		if abort {
			err = o.recorder.Abort()
		} else {
			err = o.recorder.Stop()
		}
		// ErrNotRecording here means the session ended on its own meanwhile
		if err != nil && !errors.Is(err, record.ErrNotRecording) {
			return failure(op + " failed: " + err.Error())
		}
		o.recorder.Wait()
	} else if o.reported || o.recorder.Result().State != record.StateFailed {
		return failure(op + " failed: not recording")
	}

	// A session that failed in the encode loop is reported here, once
	o.reported = true
	o.bus.Unregister(o.recorder)
	res := o.recorder.Result()
	if res.State == record.StateFailed {
		return failure(fmt.Sprintf("%s failed: %v", op, res.Err))
	}
	return success(PathData{Path: res.Path})
}

// CaptureStill writes the most recent captured frame to path as PNG.
func (o *Orchestrator) CaptureStill(path string) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return failure("take capture failed, service not started")
	}

	abs, err := o.prepareTarget(path)
	if err != nil {
		return failure("take capture: " + err.Error())
	}

	data, err := o.encodeLastFrame()
	if err == nil {
		err = o.deps.FS.WriteFile(abs, data)
	}
	if err != nil {
		if rmErr := o.deps.FS.Remove(abs); rmErr != nil {
			o.logger.Warn("Failed to remove %s: %v", abs, rmErr)
		}
		o.logger.Error("Take capture failed: %v", err)
		return failure("take capture: " + err.Error())
	}

	o.logger.Info("Capture saved: %s", abs)
	return success(PathData{Path: abs})
}

func (o *Orchestrator) encodeLastFrame() ([]byte, error) {
	frame, err := o.bus.LastStill()
	if err != nil {
		return nil, errors.New("last bitmap not exist")
	}
	defer pipeline.ReleaseFrame(frame)
	return o.deps.Codec.EncodePNG(frame.Pixels)
}

// LastPreviewStill returns the last preview frame as a full quality JPEG.
// On success Data holds the JPEG bytes.
func (o *Orchestrator) LastPreviewStill() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running || !o.preview.Running() {
		return failure("preview not started")
	}
	data, err := o.preview.LastStillJPEG()
	if err != nil {
		if errors.Is(err, preview.ErrNoFrame) {
			return failure("last jpg not exist")
		}
		return failure("last jpg failed: " + err.Error())
	}
	return success(data)
}

// Stats returns live counters while capture runs.
func (o *Orchestrator) Stats() (framebus.Stats, preview.Stats, record.Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return framebus.Stats{}, preview.Stats{}, record.Status{}, false
	}
	return o.bus.Stats(), o.preview.Stats(), o.recorder.Status(), true
}

// prepareTarget resolves path and creates it empty. An existing file is
// never touched.
func (o *Orchestrator) prepareTarget(path string) (string, error) {
	if path == "" {
		return "", errors.New("fileAbsolutePath not specified")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	exists, err := o.deps.FS.Exists(abs)
	if err != nil {
		return "", &targetError{path: abs, err: err}
	}
	if exists {
		return "", &targetError{path: abs, err: ErrFileExists}
	}
	if err := o.deps.FS.CreateExclusive(abs); err != nil {
		return "", &targetError{path: abs, err: err}
	}
	return abs, nil
}

type targetError struct {
	path string
	err  error
}

func (e *targetError) Error() string {
	if errors.Is(e.err, ErrFileExists) || errors.Is(e.err, os.ErrExist) {
		return fmt.Sprintf("file: %s exist", e.path)
	}
	return fmt.Sprintf("can not write file: %s: %v", e.path, e.err)
}

func (e *targetError) Unwrap() error {
	return e.err
}
