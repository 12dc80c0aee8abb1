// Package chromesource captures a Chrome tab as a FrameSource using the
// DevTools screencast. Each screencast frame arrives as a JPEG which is only
// decoded when a consumer asks for its pixels.
package chromesource

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

var (
	// ErrChromeNotFound is returned when no browser binary can be located.
	ErrChromeNotFound = errors.New("chromesource: chrome not found; install Chrome/Chromium or set CHROME_PATH")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("chromesource: already started")

	// ErrFrameReleased is returned by Image after Release.
	ErrFrameReleased = errors.New("chromesource: frame already released")
)

// Options configures the browser and screencast.
type Options struct {
	ChromePath string
	URL        string
	Width      int
	Height     int
	Headless   bool
	// Quality is the screencast JPEG quality. Defaults to 80.
	Quality int
	// EveryNthFrame throttles the screencast. Defaults to 1.
	EveryNthFrame int
	Clock         pipeline.Clock
	Logger        ports.Logger
}

// Source implements ports.FrameSource.
type Source struct {
	opts   Options
	logger ports.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	latest      chan *rawFrame
	done        chan struct{}
	received    atomic.Int64
	replaced    atomic.Int64
}

// New creates a source. The browser is launched by Start.
func New(opts Options, logger ports.Logger) *Source {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	if opts.EveryNthFrame <= 0 {
		opts.EveryNthFrame = 1
	}
	if opts.URL == "" {
		opts.URL = "about:blank"
	}
	if opts.Clock == nil {
		opts.Clock = pipeline.SystemClock
	}
	return &Source{opts: opts, logger: logger.WithComponent("chromesource")}
}

// Size returns the emulated viewport in device pixels.
func (s *Source) Size() (int, int) {
	return s.opts.Width, s.opts.Height
}

func (s *Source) allocatorOptions(chromePath string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.ExecPath(chromePath),
		chromedp.WindowSize(s.opts.Width, s.opts.Height),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	}
	if s.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}

// Start launches the browser, loads the URL and begins the screencast.
// onFrame runs on a dedicated goroutine; the next frame is delivered only
// after the previous one is released. Frames arriving in between replace
// each other so the consumer always gets the newest.
func (s *Source) Start(ctx context.Context, onFrame func(ports.RawFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	chromePath := ResolveChromePath(s.opts.ChromePath)
	if chromePath == "" {
		return ErrChromeNotFound
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions(chromePath)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	latest := make(chan *rawFrame, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		go chromedp.Run(browserCtx, page.ScreencastFrameAck(e.SessionID))

		data, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			s.logger.Warn("Failed to decode screencast frame: %v", err)
			return
		}
		s.received.Add(1)
		s.offer(latest, &rawFrame{ts: s.opts.Clock.NowUs(), data: data, released: make(chan struct{})})
	})

	err := chromedp.Run(browserCtx,
		emulation.SetDeviceMetricsOverride(int64(s.opts.Width), int64(s.opts.Height), 1, false),
		chromedp.Navigate(s.opts.URL),
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(int64(s.opts.Quality)).
			WithMaxWidth(int64(s.opts.Width)).
			WithMaxHeight(int64(s.opts.Height)).
			WithEveryNthFrame(int64(s.opts.EveryNthFrame)),
	)
	if err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("start screencast: %w", err)
	}

	s.allocCancel = allocCancel
	s.ctx = browserCtx
	s.cancel = cancel
	s.latest = latest
	s.done = make(chan struct{})

	go s.dispatch(browserCtx, latest, onFrame, s.done)

	s.logger.Info("Screencast started: %s (%dx%d)", s.opts.URL, s.opts.Width, s.opts.Height)
	return nil
}

// offer keeps only the newest frame in latest.
func (s *Source) offer(latest chan *rawFrame, f *rawFrame) {
	for {
		select {
		case latest <- f:
			return
		default:
		}
		select {
		case old := <-latest:
			old.Release()
			s.replaced.Add(1)
		default:
		}
	}
}

func (s *Source) dispatch(ctx context.Context, latest chan *rawFrame, onFrame func(ports.RawFrame), done chan struct{}) {
	defer close(done)
	for {
		var f *rawFrame
		select {
		case <-ctx.Done():
			return
		case f = <-latest:
		}

		onFrame(f)

		select {
		case <-ctx.Done():
			return
		case <-f.released:
		}
	}
}

// Stop ends the screencast and closes the browser.
func (s *Source) Stop() error {
	s.mu.Lock()
	ctx, cancel, allocCancel, done := s.ctx, s.cancel, s.allocCancel, s.done
	s.ctx, s.cancel, s.allocCancel, s.done = nil, nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := chromedp.Run(stopCtx, page.StopScreencast()); err != nil {
		s.logger.Debug("Failed to stop screencast: %v", err)
	}
	stopCancel()

	cancel()
	<-done
	allocCancel()

	s.logger.Info("Screencast stopped: %d frames received, %d replaced", s.received.Load(), s.replaced.Load())
	return nil
}

// Received returns the number of screencast frames received.
func (s *Source) Received() int64 {
	return s.received.Load()
}

type rawFrame struct {
	ts       int64
	data     []byte
	once     sync.Once
	released chan struct{}
}

func (f *rawFrame) TimestampUs() int64 { return f.ts }

func (f *rawFrame) Image() (image.Image, error) {
	select {
	case <-f.released:
		return nil, ErrFrameReleased
	default:
	}
	img, err := jpeg.Decode(bytes.NewReader(f.data))
	if err != nil {
		return nil, fmt.Errorf("decode screencast frame: %w", err)
	}
	return img, nil
}

func (f *rawFrame) Release() {
	f.once.Do(func() { close(f.released) })
}

var _ ports.FrameSource = (*Source)(nil)
