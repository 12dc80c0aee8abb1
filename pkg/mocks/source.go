package mocks

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/user/screencap/pkg/ports"
)

// RawFrame is a mock implementation of ports.RawFrame.
type RawFrame struct {
	Timestamp int64
	Img       image.Image
	Err       error

	released atomic.Int32
}

func (m *RawFrame) TimestampUs() int64 {
	return m.Timestamp
}

func (m *RawFrame) Image() (image.Image, error) {
	return m.Img, m.Err
}

func (m *RawFrame) Release() {
	m.released.Add(1)
}

// Released returns how many times Release was called.
func (m *RawFrame) Released() int {
	return int(m.released.Load())
}

var _ ports.RawFrame = (*RawFrame)(nil)

// FrameSource is a mock implementation of ports.FrameSource.
// Tests push frames with Emit once Start has been called.
type FrameSource struct {
	Width  int
	Height int

	StartFunc func(ctx context.Context, onFrame func(ports.RawFrame)) error
	StopFunc  func() error

	mu          sync.Mutex
	onFrame     func(ports.RawFrame)
	StartCalled bool
	StopCalled  bool
}

func (m *FrameSource) Start(ctx context.Context, onFrame func(ports.RawFrame)) error {
	m.mu.Lock()
	m.StartCalled = true
	m.onFrame = onFrame
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, onFrame)
	}
	return nil
}

func (m *FrameSource) Stop() error {
	m.mu.Lock()
	m.StopCalled = true
	m.onFrame = nil
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *FrameSource) Size() (int, int) {
	return m.Width, m.Height
}

// Emit delivers a frame to the registered callback. It reports false when
// the source is not started.
func (m *FrameSource) Emit(frame ports.RawFrame) bool {
	m.mu.Lock()
	cb := m.onFrame
	m.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

// Started reports whether Start was called without a later Stop.
func (m *FrameSource) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onFrame != nil
}

var _ ports.FrameSource = (*FrameSource)(nil)
