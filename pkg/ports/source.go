// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"image"
)

// RawFrame is a platform-owned captured image handed to the frame callback.
// The handle stays valid until Release is called; a source delivers the next
// frame only after the previous one has been released.
type RawFrame interface {
	// TimestampUs returns the capture time in monotonic microseconds.
	TimestampUs() int64

	// Image decodes or wraps the frame pixels.
	// The returned image must not be retained after Release.
	Image() (image.Image, error)

	// Release returns the handle to the source. Calling it twice is a no-op.
	Release()
}

// FrameSource abstracts the platform capture source.
type FrameSource interface {
	// Start begins capture and invokes onFrame on the source's own goroutine
	// for every frame. Start returns once capture is running.
	Start(ctx context.Context, onFrame func(RawFrame)) error

	// Stop ends capture. No callbacks are made after Stop returns.
	Stop() error

	// Size returns the capture dimensions in pixels.
	Size() (width, height int)
}

// SourceProvider obtains a capture session, e.g. after asking the user for
// permission. It returns ErrPermissionDenied style errors when refused.
type SourceProvider interface {
	Acquire(ctx context.Context) (FrameSource, error)
}

// SourceProviderFunc adapts a function to SourceProvider.
type SourceProviderFunc func(ctx context.Context) (FrameSource, error)

// Acquire implements SourceProvider.
func (f SourceProviderFunc) Acquire(ctx context.Context) (FrameSource, error) {
	return f(ctx)
}
