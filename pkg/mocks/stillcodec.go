package mocks

import (
	"image"
	"sync"

	"github.com/user/screencap/pkg/ports"
)

// StillCodec is a mock implementation of ports.StillCodec.
// By default it returns small marker payloads and scales with nearest
// neighbour sampling.
type StillCodec struct {
	EncodeJPEGFunc func(img image.Image, quality int) ([]byte, error)
	EncodePNGFunc  func(img image.Image) ([]byte, error)
	DecodeFunc     func(data []byte) (image.Image, error)

	mu            sync.Mutex
	JPEGQualities []int
	PNGCalls      int
	ScaleCalls    []float64
}

func (m *StillCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	m.mu.Lock()
	m.JPEGQualities = append(m.JPEGQualities, quality)
	m.mu.Unlock()
	if m.EncodeJPEGFunc != nil {
		return m.EncodeJPEGFunc(img, quality)
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func (m *StillCodec) EncodePNG(img image.Image) ([]byte, error) {
	m.mu.Lock()
	m.PNGCalls++
	m.mu.Unlock()
	if m.EncodePNGFunc != nil {
		return m.EncodePNGFunc(img)
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (m *StillCodec) Decode(data []byte) (image.Image, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(data)
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (m *StillCodec) Scale(img image.Image, factor float64) *image.RGBA {
	m.mu.Lock()
	m.ScaleCalls = append(m.ScaleCalls, factor)
	m.mu.Unlock()

	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := b.Min.X + int(float64(x)/factor)
			sy := b.Min.Y + int(float64(y)/factor)
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// Qualities returns the JPEG qualities requested so far.
func (m *StillCodec) Qualities() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.JPEGQualities...)
}

var _ ports.StillCodec = (*StillCodec)(nil)

// Scales returns the scale factors requested so far.
func (m *StillCodec) Scales() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.ScaleCalls...)
}
