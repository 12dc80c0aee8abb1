package h264encoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/screencap/pkg/ports"
)

func testFormat() ports.EncoderFormat {
	return ports.EncoderFormat{
		Mime:             ports.MimeH264,
		Width:            720,
		Height:           1280,
		Bitrate:          12 * 720 * 1280,
		FrameRate:        30,
		KeyFrameInterval: 5,
		ColorFormat:      ports.ColorFormatNV12,
	}
}

func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(CodecNVENC, testFormat())
	joined := strings.Join(args, " ")

	checks := map[string]string{
		"-pix_fmt": "nv12",
		"-s":       "720x1280",
		"-r":       "30",
		"-c:v":     "h264_nvenc",
		"-b:v":     "11059200",
		"-g":       "150",
		"-bf":      "0",
		"-f":       "rawvideo",
	}
	for key, want := range checks {
		if got := argValue(args, key); got != want {
			t.Errorf("%s: expected %q, got %q (%s)", key, want, got, joined)
		}
	}
	if args[len(args)-1] != "pipe:1" || argValue(args, "-i") != "pipe:0" {
		t.Errorf("expected stdin to stdout piping: %s", joined)
	}
	if !strings.Contains(joined, "-f h264 pipe:1") {
		t.Errorf("expected raw h264 output: %s", joined)
	}
}

func TestBuildArgs_VAAPIUploadsFrames(t *testing.T) {
	args := BuildArgs(CodecVAAPI, testFormat())
	if argValue(args, "-vaapi_device") != VAAPIDevice {
		t.Error("missing vaapi device")
	}
	if argValue(args, "-vf") != "format=nv12,hwupload" {
		t.Error("missing hwupload filter")
	}
}

func TestBuildArgs_Software(t *testing.T) {
	args := BuildArgs(CodecX264, testFormat())
	if argValue(args, "-tune") != "zerolatency" {
		t.Error("libx264 should use zerolatency tuning")
	}
	if IsHardware(CodecX264) || !IsHardware(CodecQSV) {
		t.Error("unexpected hardware classification")
	}
}

func TestParseEncoderList(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D h264_vaapi           H.264/AVC (VAAPI) (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)
`
	names := ParseEncoderList(output)
	want := []string{"libx264", "h264_nvenc", "h264_vaapi"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d]: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestFindFFmpeg_CustomPath(t *testing.T) {
	defer SetFFmpegPath("")

	fake := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	SetFFmpegPath(fake)
	got, err := FindFFmpeg()
	if err != nil || got != fake {
		t.Errorf("expected %s, got %s (%v)", fake, got, err)
	}

	SetFFmpegPath(filepath.Join(t.TempDir(), "missing"))
	if _, err := FindFFmpeg(); err == nil {
		t.Error("expected error for missing custom path")
	}
}
