package h264encoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/user/screencap/pkg/ports"
)

var (
	pathMu           sync.RWMutex
	customFFmpegPath string
)

// SetFFmpegPath overrides ffmpeg discovery. An empty path restores the
// default search.
func SetFFmpegPath(path string) {
	pathMu.Lock()
	defer pathMu.Unlock()
	customFFmpegPath = path
}

// IsFFmpegAvailable checks if ffmpeg is available on the system.
func IsFFmpegAvailable() bool {
	_, err := FindFFmpeg()
	return err == nil
}

// FindFFmpeg searches for ffmpeg in PATH and common locations.
// Priority: 1) customFFmpegPath (set via SetFFmpegPath), 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func FindFFmpeg() (string, error) {
	pathMu.RLock()
	custom := customFFmpegPath
	pathMu.RUnlock()

	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// Codec names understood by ffmpeg.
const (
	CodecNVENC        = "h264_nvenc"
	CodecVAAPI        = "h264_vaapi"
	CodecQSV          = "h264_qsv"
	CodecVideoToolbox = "h264_videotoolbox"
	CodecAMF          = "h264_amf"
	CodecMF           = "h264_mf"
	CodecX264         = "libx264"
)

// IsHardware reports whether codec is a hardware-backed encoder.
func IsHardware(codec string) bool {
	return codec != CodecX264
}

// VAAPIDevice is the render node used by the VAAPI encoder.
var VAAPIDevice = "/dev/dri/renderD128"

// BuildArgs returns the ffmpeg arguments that read raw frames of the given
// format from stdin and write an H.264 Annex B stream to stdout.
func BuildArgs(codec string, f ports.EncoderFormat) []string {
	gop := f.FrameRate * f.KeyFrameInterval
	if gop <= 0 {
		gop = f.FrameRate
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if codec == CodecVAAPI {
		args = append(args, "-vaapi_device", VAAPIDevice)
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", f.ColorFormat.String(),
		"-s", fmt.Sprintf("%dx%d", f.Width, f.Height),
		"-r", strconv.Itoa(f.FrameRate),
		"-i", "pipe:0",
	)

	if codec == CodecVAAPI {
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-c:v", codec)
	args = append(args, codecOptions(codec)...)

	args = append(args,
		"-b:v", strconv.Itoa(f.Bitrate),
		"-maxrate", strconv.Itoa(f.Bitrate),
		"-bufsize", strconv.Itoa(f.Bitrate),
		"-g", strconv.Itoa(gop),
		"-bf", "0",
		"-f", "h264",
		"pipe:1",
	)
	return args
}

// codecOptions returns low-latency settings so every submitted frame comes
// out promptly.
func codecOptions(codec string) []string {
	switch codec {
	case CodecNVENC:
		return []string{"-preset", "p1", "-tune", "ll", "-zerolatency", "1", "-delay", "0", "-rc", "cbr"}
	case CodecQSV:
		return []string{"-preset", "veryfast", "-look_ahead", "0", "-async_depth", "1"}
	case CodecVideoToolbox:
		return []string{"-realtime", "1", "-allow_sw", "0"}
	case CodecAMF:
		return []string{"-usage", "lowlatency", "-quality", "speed"}
	case CodecMF:
		return []string{"-hw_encoding", "1", "-scenario", "display_remoting"}
	case CodecX264:
		return []string{"-preset", "veryfast", "-tune", "zerolatency", "-pix_fmt", "yuv420p", "-profile:v", "baseline"}
	}
	return nil
}

// ListEncoders returns the video encoder names compiled into ffmpeg.
func ListEncoders(ctx context.Context, ffmpegPath string) ([]string, error) {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ffmpeg encoders: %w", err)
	}
	return ParseEncoderList(string(out)), nil
}

// ParseEncoderList extracts video encoder names from `ffmpeg -encoders`.
func ParseEncoderList(output string) []string {
	var names []string
	inList := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'V' {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

// Probe verifies that codec can actually encode on this machine by
// encoding a single synthetic frame.
func Probe(ctx context.Context, ffmpegPath, codec string) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if codec == CodecVAAPI {
		args = append(args, "-vaapi_device", VAAPIDevice)
	}
	args = append(args, "-f", "lavfi", "-i", "color=black:s=256x144:r=30")
	if codec == CodecVAAPI {
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-frames:v", "1", "-c:v", codec)
	args = append(args, codecOptions(codec)...)
	args = append(args, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("probe %s: %w: %s", codec, err, strings.TrimSpace(string(out)))
	}
	return nil
}
