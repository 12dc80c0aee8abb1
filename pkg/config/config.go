// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/screencap/pkg/orchestrator"
	"github.com/user/screencap/pkg/ports"
	"github.com/user/screencap/pkg/stages/preview"
	"github.com/user/screencap/pkg/stages/record"
)

// Source kinds.
const (
	SourcePattern = "pattern"
	SourceChrome  = "chrome"
)

// Config represents the full configuration for screencap.
type Config struct {
	Capture  CaptureConfig `yaml:"capture"`
	Preview  PreviewConfig `yaml:"preview"`
	Record   RecordConfig  `yaml:"record"`
	Server   ServerConfig  `yaml:"server"`
	LogLevel string        `yaml:"log_level"`
}

// CaptureConfig selects and sizes the frame source.
type CaptureConfig struct {
	Source     string `yaml:"source"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	URL        string `yaml:"url"`
	ChromePath string `yaml:"chrome_path"`
	Headless   bool   `yaml:"headless"`
}

// PreviewConfig tunes the preview stream.
type PreviewConfig struct {
	MaxFPS      int     `yaml:"max_fps"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	Scale       float64 `yaml:"scale"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// RecordConfig tunes the recorder.
type RecordConfig struct {
	Width             int    `yaml:"width"`
	FrameRate         int    `yaml:"frame_rate"`
	KeyFrameIntervalS int    `yaml:"key_frame_interval_s"`
	BitsPerPixel      int    `yaml:"bits_per_pixel"`
	FFmpegPath        string `yaml:"ffmpeg_path"`
	Encoder           string `yaml:"encoder"`
	AllowSoftware     bool   `yaml:"allow_software"`
}

// ServerConfig configures the host bridge HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	pv := preview.DefaultConfig()
	rec := record.DefaultConfig(0, 0)
	return Config{
		Capture: CaptureConfig{
			Source:   SourcePattern,
			Width:    1280,
			Height:   720,
			FPS:      30,
			URL:      "about:blank",
			Headless: true,
		},
		Preview: PreviewConfig{
			MaxFPS:      pv.MaxFPS,
			MaxDelayMs:  int(pv.MaxDelay / time.Millisecond),
			Scale:       pv.Scale,
			JPEGQuality: pv.JPEGQuality,
		},
		Record: RecordConfig{
			Width:             720,
			FrameRate:         rec.FrameRate,
			KeyFrameIntervalS: rec.KeyFrameInterval,
			BitsPerPixel:      rec.BitsPerPixel,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file on top of Defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Capture.Source {
	case SourcePattern, SourceChrome:
	default:
		errs = append(errs, fmt.Errorf("capture.source: unknown source %q", c.Capture.Source))
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		errs = append(errs, fmt.Errorf("capture: invalid size %dx%d", c.Capture.Width, c.Capture.Height))
	}
	if c.Capture.FPS <= 0 {
		errs = append(errs, errors.New("capture.fps: must be positive"))
	}
	if c.Preview.MaxFPS < 0 {
		errs = append(errs, errors.New("preview.max_fps: must not be negative"))
	}
	if c.Preview.MaxDelayMs <= 0 {
		errs = append(errs, errors.New("preview.max_delay_ms: must be positive"))
	}
	if c.Preview.Scale <= 0 || c.Preview.Scale > 1 {
		errs = append(errs, fmt.Errorf("preview.scale: %v out of range (0, 1]", c.Preview.Scale))
	}
	if c.Preview.JPEGQuality < 1 || c.Preview.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("preview.jpeg_quality: %d out of range 1-100", c.Preview.JPEGQuality))
	}
	if c.Record.Width < 2 {
		errs = append(errs, errors.New("record.width: must be at least 2"))
	}
	if c.Record.FrameRate <= 0 {
		errs = append(errs, errors.New("record.frame_rate: must be positive"))
	}
	if c.Record.KeyFrameIntervalS <= 0 {
		errs = append(errs, errors.New("record.key_frame_interval_s: must be positive"))
	}
	if c.Record.BitsPerPixel <= 0 {
		errs = append(errs, errors.New("record.bits_per_pixel: must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel is ports.ParseLogLevel with unknown names rejected.
func ParseLogLevel(name string) (ports.LogLevel, error) {
	switch name {
	case "":
		return ports.LevelInfo, nil
	case "debug", "info", "warn", "error", "quiet":
		return ports.ParseLogLevel(name), nil
	default:
		return ports.LevelInfo, fmt.Errorf("log_level: unknown level %q", name)
	}
}

// ToPreviewConfig converts the preview section.
func (c Config) ToPreviewConfig() preview.Config {
	cfg := preview.DefaultConfig()
	cfg.MaxFPS = c.Preview.MaxFPS
	cfg.MaxDelay = time.Duration(c.Preview.MaxDelayMs) * time.Millisecond
	cfg.Scale = c.Preview.Scale
	cfg.JPEGQuality = c.Preview.JPEGQuality
	return cfg
}

// ToRecordConfig converts the record section for a source of srcW x srcH.
func (c Config) ToRecordConfig(srcW, srcH int) record.Config {
	w, h := record.FrameSize(srcW, srcH, c.Record.Width)
	cfg := record.DefaultConfig(w, h)
	cfg.FrameRate = c.Record.FrameRate
	cfg.KeyFrameInterval = c.Record.KeyFrameIntervalS
	cfg.BitsPerPixel = c.Record.BitsPerPixel
	return cfg
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Preview:     c.ToPreviewConfig(),
		Record:      c.ToRecordConfig(0, 0),
		RecordWidth: c.Record.Width,
	}
}
