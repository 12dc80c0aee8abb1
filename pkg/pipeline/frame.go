// Package pipeline provides the frame types and buffering primitives shared by
// the frame bus and its consumers.
package pipeline

import (
	"image"
	"image/draw"
)

// =============================================================================
// Frame Types
// =============================================================================

// Frame is a normalized capture frame in RGBA layout.
// A Frame handed to a consumer is borrowed; consumers that keep pixels past
// the OnFrame call must Clone it.
type Frame struct {
	TimestampUs int64 // capture time, monotonic microseconds
	Width       int
	Height      int
	Pixels      *image.RGBA
}

// FromImage converts an arbitrary image into a Frame with its own buffer.
func FromImage(timestampUs int64, img image.Image) Frame {
	b := img.Bounds()
	dst := frames.get(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Frame{
		TimestampUs: timestampUs,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Pixels:      dst,
	}
}

// Clone returns a copy that shares no memory with f.
func (f Frame) Clone() Frame {
	if f.Pixels == nil {
		return f
	}
	dst := frames.get(f.Width, f.Height)
	if f.Pixels.Stride == dst.Stride {
		copy(dst.Pix, f.Pixels.Pix)
	} else {
		draw.Draw(dst, dst.Bounds(), f.Pixels, f.Pixels.Rect.Min, draw.Src)
	}
	return Frame{
		TimestampUs: f.TimestampUs,
		Width:       f.Width,
		Height:      f.Height,
		Pixels:      dst,
	}
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Pixels == nil
}

// Release hands the pixel buffer back for reuse. The frame must not be used
// afterwards.
func ReleaseFrame(f Frame) {
	if f.Pixels != nil {
		frames.put(f.Pixels)
	}
}

// QueuedFrame is the unit of work on a consumer queue.
type QueuedFrame struct {
	TimestampUs int64
	Frame       Frame
}

// FrameConsumer receives frames from the frame bus.
// OnFrame runs on the capture goroutine and must return promptly.
type FrameConsumer interface {
	OnFrame(frame Frame)
}
