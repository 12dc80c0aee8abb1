package stillcodec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/draw"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCodec_EncodeDecodeJPEG(t *testing.T) {
	c := New()
	img := solidImage(50, 40, color.RGBA{R: 255, A: 255})

	data, err := c.EncodeJPEG(img, 80)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("expected JPEG SOI marker")
	}

	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 50 || b.Dy() != 40 {
		t.Errorf("expected 50x40, got %dx%d", b.Dx(), b.Dy())
	}
	r, g, _, _ := decoded.At(25, 20).RGBA()
	if r>>8 < 200 || g>>8 > 60 {
		t.Errorf("expected red pixel, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestCodec_QualityAffectsSize(t *testing.T) {
	c := New()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x * y) % 256), A: 255})
		}
	}

	low, err := c.EncodeJPEG(img, 30)
	if err != nil {
		t.Fatal(err)
	}
	high, err := c.EncodeJPEG(img, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("expected q30 (%d bytes) smaller than q100 (%d bytes)", len(low), len(high))
	}

	if _, err := c.EncodeJPEG(img, 0); err != nil {
		t.Errorf("quality 0 should be clamped, got %v", err)
	}
}

func TestCodec_EncodeDecodePNG(t *testing.T) {
	c := New()
	img := solidImage(10, 10, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	data, err := c.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := color.RGBAModel.Convert(decoded.At(5, 5)).(color.RGBA)
	if got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("PNG should be lossless, got %v", got)
	}
}

func TestCodec_EmptyImage(t *testing.T) {
	c := New()
	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))

	if _, err := c.EncodeJPEG(empty, 30); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("EncodeJPEG: expected ErrEmptyImage, got %v", err)
	}
	if _, err := c.EncodePNG(empty); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("EncodePNG: expected ErrEmptyImage, got %v", err)
	}
	if _, err := c.Decode([]byte("not an image")); err == nil {
		t.Error("Decode: expected error for garbage")
	}
}

func TestCodec_Scale(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		factor       float64
		wantW, wantH int
	}{
		{"preview", 1080, 2400, 0.8, 864, 1920},
		{"truncates", 15, 9, 0.8, 12, 7},
		{"minimum one pixel", 1, 1, 0.5, 1, 1},
		{"upscale", 10, 10, 2, 20, 20},
	}

	c := NewWithScaler(draw.CatmullRom)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := solidImage(tt.w, tt.h, color.RGBA{G: 200, A: 255})
			dst := c.Scale(src, tt.factor)
			if b := dst.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
			if got := dst.RGBAAt(0, 0); got.G < 190 {
				t.Errorf("expected green pixel, got %v", got)
			}
		})
	}
}

func TestCodec_ScaleSubImage(t *testing.T) {
	src := solidImage(20, 20, color.RGBA{B: 255, A: 255})
	sub := src.SubImage(image.Rect(10, 10, 20, 20))

	dst := New().Scale(sub, 0.5)
	if b := dst.Bounds(); b.Min != (image.Point{}) || b.Dx() != 5 {
		t.Errorf("expected 5x5 at origin, got %v", b)
	}
}
