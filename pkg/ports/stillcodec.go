package ports

import "image"

// StillCodec abstracts still image compression and scaling.
type StillCodec interface {
	// EncodeJPEG compresses an image at the given quality (1-100).
	EncodeJPEG(img image.Image, quality int) ([]byte, error)

	// EncodePNG compresses an image losslessly.
	EncodePNG(img image.Image) ([]byte, error)

	// Decode decodes JPEG or PNG data.
	Decode(data []byte) (image.Image, error)

	// Scale resizes an image by a uniform factor.
	Scale(img image.Image, factor float64) *image.RGBA
}
