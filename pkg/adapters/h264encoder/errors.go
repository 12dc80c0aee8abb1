package h264encoder

import "errors"

var (
	// ErrNotConfigured is returned when Start is called before Configure.
	ErrNotConfigured = errors.New("h264encoder: encoder not configured")

	// ErrNotStarted is returned when input or output is requested before Start.
	ErrNotStarted = errors.New("h264encoder: encoder not started")

	// ErrInputClosed is returned by Submit after end of stream was signalled.
	ErrInputClosed = errors.New("h264encoder: input closed")

	// ErrInputSize is returned when a submitted frame has the wrong length.
	ErrInputSize = errors.New("h264encoder: unexpected input size")

	// ErrUnsupportedFormat is returned for formats other than H.264.
	ErrUnsupportedFormat = errors.New("h264encoder: unsupported format")

	// ErrFFmpegNotFound is returned when ffmpeg is not found.
	ErrFFmpegNotFound = errors.New("h264encoder: ffmpeg not found in PATH")
)
