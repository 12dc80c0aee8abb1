package record

import (
	"image"
	"testing"
)

func TestRGBAToNV12_2x2(t *testing.T) {
	// (0,0)=red, (1,0)=green, (0,1)=blue, (1,1)=white
	img := &image.RGBA{
		Pix: []byte{
			255, 0, 0, 255, 0, 255, 0, 255,
			0, 0, 255, 255, 255, 255, 255, 255,
		},
		Stride: 8,
		Rect:   image.Rect(0, 0, 2, 2),
	}

	nv12 := make([]byte, nv12Size(2, 2))
	rgbaToNV12(nv12, img)

	// Y plane [red, green, blue, white], UV sampled from red
	want := []byte{
		82, 144,
		41, 235,
		90, 240,
	}
	for i := range want {
		if nv12[i] != want[i] {
			t.Fatalf("byte[%d]: expected %d, got %d (nv12=%v)", i, want[i], nv12[i], nv12)
		}
	}
}

func TestRGBAToNV12_Black(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}

	nv12 := make([]byte, nv12Size(6, 4))
	rgbaToNV12(nv12, img)

	for i := 0; i < 24; i++ {
		if nv12[i] != 16 {
			t.Fatalf("Y[%d]: expected 16, got %d", i, nv12[i])
		}
	}
	for i := 24; i < len(nv12); i++ {
		if nv12[i] != 128 {
			t.Fatalf("UV[%d]: expected 128, got %d", i-24, nv12[i])
		}
	}
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		srcW, srcH, target int
		wantW, wantH       int
	}{
		{1080, 1920, 720, 720, 1280},
		{1280, 720, 720, 720, 404},
		{1920, 1080, 0, 1920, 1080},
		{721, 500, 721, 720, 500},
		{0, 100, 720, 0, 0},
	}
	for _, tt := range tests {
		w, h := FrameSize(tt.srcW, tt.srcH, tt.target)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("FrameSize(%d, %d, %d) = %dx%d, expected %dx%d",
				tt.srcW, tt.srcH, tt.target, w, h, tt.wantW, tt.wantH)
		}
	}
}
