package h264decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"

	"github.com/user/screencap/pkg/adapters/h264encoder"
	"github.com/user/screencap/pkg/ports"
)

// Decoder turns recorded samples back into images using ffmpeg.
type Decoder struct {
	ffmpegPath string
	codec      ports.StillCodec
}

// New creates a decoder. An empty ffmpegPath is resolved with
// h264encoder.FindFFmpeg on first use. codec decodes ffmpeg's PNG output.
func New(ffmpegPath string, codec ports.StillCodec) *Decoder {
	return &Decoder{ffmpegPath: ffmpegPath, codec: codec}
}

// Stream returns the Annex B bytes needed to decode frame index: everything
// from the closest preceding sync sample up to the frame, and the position
// of the frame within that run.
func Stream(samples []Sample, index int) ([]byte, int, error) {
	if index < 0 || index >= len(samples) {
		return nil, 0, fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, index, len(samples))
	}
	key := index
	for key >= 0 && !samples[key].Sync {
		key--
	}
	if key < 0 {
		return nil, 0, fmt.Errorf("%w %d", ErrNoKeyFrame, index)
	}

	var buf bytes.Buffer
	for _, s := range samples[key : index+1] {
		buf.Write(s.Data)
	}
	return buf.Bytes(), index - key, nil
}

// DecodeFrame decodes frame index of samples.
func (d *Decoder) DecodeFrame(ctx context.Context, samples []Sample, index int) (image.Image, error) {
	stream, n, err := Stream(samples, index)
	if err != nil {
		return nil, err
	}

	path := d.ffmpegPath
	if path == "" {
		if path, err = h264encoder.FindFFmpeg(); err != nil {
			return nil, err
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", n),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(stream)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrDecodeFailed, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no output for frame %d", ErrDecodeFailed, index)
	}

	img, err := d.codec.Decode(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return img, nil
}
