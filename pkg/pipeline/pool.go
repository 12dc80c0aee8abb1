package pipeline

import (
	"image"
	"sync"
)

// framePool recycles RGBA buffers of a single resolution. Capture sessions
// keep one resolution, so a size change simply resets the pool.
type framePool struct {
	mu   sync.Mutex
	w, h int
	pool sync.Pool
}

var frames framePool

func (p *framePool) get(w, h int) *image.RGBA {
	p.mu.Lock()
	if p.w != w || p.h != h {
		p.w, p.h = w, h
		p.pool = sync.Pool{}
		p.mu.Unlock()
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}
	v := p.pool.Get()
	p.mu.Unlock()
	if v != nil {
		return v.(*image.RGBA)
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func (p *framePool) put(img *image.RGBA) {
	b := img.Bounds()
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.Min.X != 0 || b.Min.Y != 0 || p.w != b.Dx() || p.h != b.Dy() {
		return
	}
	p.pool.Put(img)
}
