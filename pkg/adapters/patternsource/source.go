// Package patternsource provides a synthetic FrameSource that renders an
// animated test card with gg. It stands in for a real screen when running
// headless or in tests.
package patternsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"

	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("patternsource: already started")

	// ErrInvalidSize is returned for non-positive dimensions.
	ErrInvalidSize = errors.New("patternsource: invalid size")
)

// Options configures the pattern.
type Options struct {
	Width  int
	Height int
	// FPS is the nominal frame rate. Defaults to 30.
	FPS int
	// Label is drawn under the frame counter.
	Label string
	// Clock stamps frames. Defaults to the system clock.
	Clock pipeline.Clock
}

var bars = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// Source implements ports.FrameSource.
type Source struct {
	opts Options

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	frames   atomic.Int64
	skipped  atomic.Int64
	inFlight atomic.Bool
}

// New creates a pattern source.
func New(opts Options) (*Source, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Clock == nil {
		opts.Clock = pipeline.SystemClock
	}
	return &Source{opts: opts}, nil
}

// Size returns the pattern dimensions.
func (s *Source) Size() (int, int) {
	return s.opts.Width, s.opts.Height
}

// Start renders frames on a ticker until Stop or ctx cancellation. A tick is
// skipped while the previous frame has not been released.
func (s *Source) Start(ctx context.Context, onFrame func(ports.RawFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, onFrame, s.done)
	return nil
}

func (s *Source) run(ctx context.Context, onFrame func(ports.RawFrame), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.inFlight.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			continue
		}
		n := s.frames.Add(1)
		onFrame(&rawFrame{
			ts:    s.opts.Clock.NowUs(),
			img:   Render(s.opts.Width, s.opts.Height, n, s.opts.Label),
			owner: s,
		})
	}
}

// Stop ends rendering and waits for the render goroutine to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Frames returns the number of frames delivered.
func (s *Source) Frames() int64 {
	return s.frames.Load()
}

// Skipped returns the number of ticks dropped because the consumer still
// held the previous frame.
func (s *Source) Skipped() int64 {
	return s.skipped.Load()
}

// Render draws frame n of the test card: colour bars, a sweeping bar whose
// position encodes n, and a counter.
func Render(width, height int, n int64, label string) *image.RGBA {
	dc := gg.NewContext(width, height)
	dc.SetColor(color.Black)
	dc.Clear()

	barW := float64(width) / float64(len(bars))
	barH := float64(height) * 2 / 3
	for i, c := range bars {
		dc.SetColor(c)
		dc.DrawRectangle(float64(i)*barW, 0, math.Ceil(barW), barH)
		dc.Fill()
	}

	// Sweep one width every 2 seconds at 30fps.
	x := float64(n%60) / 60 * float64(width)
	dc.SetColor(color.White)
	dc.DrawRectangle(x, barH, math.Max(2, float64(width)/60), float64(height)-barH)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(fmt.Sprintf("%06d", n), float64(width)/2, barH+(float64(height)-barH)/3, 0.5, 0.5)
	if label != "" {
		dc.DrawStringAnchored(label, float64(width)/2, barH+(float64(height)-barH)*2/3, 0.5, 0.5)
	}

	return dc.Image().(*image.RGBA)
}

type rawFrame struct {
	ts       int64
	img      *image.RGBA
	owner    *Source
	released atomic.Bool
}

func (f *rawFrame) TimestampUs() int64 { return f.ts }

func (f *rawFrame) Image() (image.Image, error) {
	if f.released.Load() {
		return nil, errors.New("patternsource: frame already released")
	}
	return f.img, nil
}

func (f *rawFrame) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.owner.inFlight.Store(false)
	}
}

var _ ports.FrameSource = (*Source)(nil)
