package record

import "image"

// nv12Size returns the byte length of an NV12 frame.
func nv12Size(width, height int) int {
	return width*height + width*height/2
}

// rgbaToNV12 converts an RGBA image into dst using BT.601 fixed-point
// coefficients. Width and height must be even and dst must hold
// nv12Size(width, height) bytes. Chroma is sampled from the top-left pixel of
// each 2x2 block.
//
// NV12 layout: [Y plane: w*h bytes] [UV interleaved plane: w*h/2 bytes]
func rgbaToNV12(dst []byte, img *image.RGBA) {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	stride := img.Stride
	pix := img.Pix

	yPlane := dst[:width*height]
	uvPlane := dst[width*height:]

	// Pass 1: Y plane, 4 pixels per iteration
	w4 := width &^ 3
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		yRow := yPlane[y*width : y*width+width]

		x := 0
		for ; x < w4; x += 4 {
			pi := x * 4
			yRow[x] = byte((66*int(row[pi])+129*int(row[pi+1])+25*int(row[pi+2])+128)>>8 + 16)
			yRow[x+1] = byte((66*int(row[pi+4])+129*int(row[pi+5])+25*int(row[pi+6])+128)>>8 + 16)
			yRow[x+2] = byte((66*int(row[pi+8])+129*int(row[pi+9])+25*int(row[pi+10])+128)>>8 + 16)
			yRow[x+3] = byte((66*int(row[pi+12])+129*int(row[pi+13])+25*int(row[pi+14])+128)>>8 + 16)
		}
		for ; x < width; x++ {
			pi := x * 4
			yRow[x] = byte((66*int(row[pi])+129*int(row[pi+1])+25*int(row[pi+2])+128)>>8 + 16)
		}
	}

	// Pass 2: interleaved UV plane
	for y := 0; y < height; y += 2 {
		row := pix[y*stride : y*stride+width*4]
		uvRow := uvPlane[(y/2)*width : (y/2)*width+width]

		for x := 0; x < width; x += 2 {
			pi := x * 4
			r := int(row[pi])
			g := int(row[pi+1])
			b := int(row[pi+2])

			uvRow[x] = byte((-38*r-74*g+112*b+128)>>8 + 128)
			uvRow[x+1] = byte((112*r-94*g-18*b+128)>>8 + 128)
		}
	}
}

// FrameSize computes the encoded resolution for a source of srcW x srcH
// scaled to targetWidth, keeping the aspect ratio. Both sides are rounded
// down to even values as required by 4:2:0 chroma subsampling.
func FrameSize(srcW, srcH, targetWidth int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if targetWidth <= 0 {
		targetWidth = srcW
	}
	w := targetWidth &^ 1
	h := int(float64(targetWidth)/(float64(srcW)/float64(srcH))) &^ 1
	if h < 2 {
		h = 2
	}
	return w, h
}
