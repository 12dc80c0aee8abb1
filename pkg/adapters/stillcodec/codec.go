// Package stillcodec provides JPEG/PNG compression and scaling for captured
// frames.
package stillcodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/user/screencap/pkg/ports"
)

// ErrEmptyImage is returned when encoding an image with no pixels.
var ErrEmptyImage = errors.New("stillcodec: empty image")

// Codec implements ports.StillCodec.
type Codec struct {
	scaler draw.Scaler
}

// New creates a codec that scales with bilinear interpolation.
func New() *Codec {
	return &Codec{scaler: draw.ApproxBiLinear}
}

// NewWithScaler creates a codec using the given interpolator,
// e.g. draw.CatmullRom for stills where quality matters more than speed.
func NewWithScaler(s draw.Scaler) *Codec {
	return &Codec{scaler: s}
}

// EncodeJPEG compresses img. Quality is clamped to 1-100.
func (c *Codec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	quality = max(1, min(quality, 100))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG compresses img losslessly.
func (c *Codec) EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes JPEG or PNG data.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Scale resizes img by factor. Dimensions are truncated and never drop
// below one pixel.
func (c *Codec) Scale(img image.Image, factor float64) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	c.scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

var _ ports.StillCodec = (*Codec)(nil)
