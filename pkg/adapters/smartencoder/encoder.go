// Package smartencoder selects the best available H.264 encoder. Hardware
// encoders exposed by ffmpeg are tried in platform order, with libx264 as an
// optional software fallback.
package smartencoder

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/user/screencap/pkg/adapters/h264encoder"
	"github.com/user/screencap/pkg/adapters/logger"
	"github.com/user/screencap/pkg/ports"
)

var (
	// ErrNoEncoderAvailable is returned when no encoder is available.
	ErrNoEncoderAvailable = errors.New("smartencoder: no encoder available")

	// ErrUnsupportedMime is returned for anything other than H.264.
	ErrUnsupportedMime = errors.New("smartencoder: unsupported mime type")
)

// Lister returns the encoder names an ffmpeg binary was built with.
type Lister func(ctx context.Context, ffmpegPath string) ([]string, error)

// Prober checks that an encoder can actually open on this machine.
type Prober func(ctx context.Context, ffmpegPath, codec string) error

// Info contains information about the selected encoder.
type Info struct {
	// Encoder is the ffmpeg encoder name, e.g. h264_nvenc.
	Encoder string
	// Hardware reports whether the encoder is hardware-backed.
	Hardware bool
	// FallbackUsed indicates that the preferred encoder was unavailable.
	FallbackUsed bool
}

// Options configures the smart encoder behavior.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// Preferred is tried before the platform candidates.
	Preferred string
	// AllowSoftware adds libx264 as the last candidate.
	AllowSoftware bool
	// ProbeTimeout bounds each probe. Defaults to 10s.
	ProbeTimeout time.Duration
	// Logger is used to log fallback warnings.
	Logger ports.Logger

	Lister Lister
	Prober Prober
}

// Selector implements ports.EncoderSelector.
type Selector struct {
	opts Options

	mu       sync.Mutex
	selected *Info
	path     string
}

// New creates a selector. Nothing is probed until the first SelectEncoder.
func New(opts Options) *Selector {
	if opts.Lister == nil {
		opts.Lister = h264encoder.ListEncoders
	}
	if opts.Prober == nil {
		opts.Prober = h264encoder.Probe
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	return &Selector{opts: opts}
}

// Candidates returns the encoders tried on goos, best first.
func Candidates(goos string, allowSoftware bool) []string {
	var list []string
	switch goos {
	case "darwin":
		list = []string{h264encoder.CodecVideoToolbox}
	case "windows":
		list = []string{h264encoder.CodecNVENC, h264encoder.CodecQSV, h264encoder.CodecAMF, h264encoder.CodecMF}
	default:
		list = []string{h264encoder.CodecNVENC, h264encoder.CodecVAAPI, h264encoder.CodecQSV}
	}
	if allowSoftware {
		list = append(list, h264encoder.CodecX264)
	}
	return list
}

// SelectEncoder returns a fresh encoder for mime. The choice is made once
// and reused by later calls.
func (s *Selector) SelectEncoder(mime string) (ports.HardwareEncoder, error) {
	if mime != ports.MimeH264 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMime, mime)
	}

	info, path, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return h264encoder.New(info.Encoder, path, s.opts.Logger), nil
}

// Info returns the cached selection, if any.
func (s *Selector) Info() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Info{}, false
	}
	return *s.selected, true
}

func (s *Selector) resolve() (Info, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != nil {
		return *s.selected, s.path, nil
	}

	path := s.opts.FFmpegPath
	if path == "" {
		found, err := h264encoder.FindFFmpeg()
		if err != nil {
			return Info{}, "", fmt.Errorf("%w: %w", ErrNoEncoderAvailable, err)
		}
		path = found
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ProbeTimeout)
	available, err := s.opts.Lister(ctx, path)
	cancel()
	if err != nil {
		return Info{}, "", fmt.Errorf("%w: %w", ErrNoEncoderAvailable, err)
	}
	built := make(map[string]bool, len(available))
	for _, name := range available {
		built[name] = true
	}

	candidates := Candidates(runtime.GOOS, s.opts.AllowSoftware)
	if s.opts.Preferred != "" {
		candidates = append([]string{s.opts.Preferred}, candidates...)
	}

	tried := make(map[string]bool)
	for _, codec := range candidates {
		if tried[codec] {
			continue
		}
		tried[codec] = true
		if !built[codec] {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ProbeTimeout)
		err := s.opts.Prober(ctx, path, codec)
		cancel()
		if err != nil {
			s.opts.Logger.Debug("Encoder probe failed: %s: %v", codec, err)
			continue
		}

		info := Info{
			Encoder:      codec,
			Hardware:     h264encoder.IsHardware(codec),
			FallbackUsed: s.opts.Preferred != "" && codec != s.opts.Preferred,
		}
		if info.FallbackUsed {
			s.opts.Logger.Warn("Preferred encoder %s unavailable, falling back to %s", s.opts.Preferred, codec)
		}
		if !info.Hardware {
			s.opts.Logger.Warn("No hardware encoder available, using software encoder %s", codec)
		}
		s.opts.Logger.Info("Encoder selected: %s (hardware: %v)", codec, info.Hardware)
		s.selected = &info
		s.path = path
		return info, path, nil
	}

	return Info{}, "", ErrNoEncoderAvailable
}

// Reset forgets the cached selection.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.path = ""
}

var _ ports.EncoderSelector = (*Selector)(nil)
