package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/screencap/pkg/ports"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	pv := cfg.ToPreviewConfig()
	if pv.MaxFPS != 10 || pv.MaxDelay != 300*time.Millisecond || pv.Scale != 0.8 || pv.JPEGQuality != 30 {
		t.Errorf("unexpected preview defaults %+v", pv)
	}

	rec := cfg.ToRecordConfig(1080, 2400)
	if rec.Width != 720 || rec.Height != 1600 {
		t.Errorf("expected 720x1600, got %dx%d", rec.Width, rec.Height)
	}
	if rec.Bitrate() != 12*720*1600 {
		t.Errorf("unexpected bitrate %d", rec.Bitrate())
	}
	if rec.FrameRate != 30 || rec.KeyFrameInterval != 5 {
		t.Errorf("unexpected record defaults %+v", rec)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screencap.yaml")
	yaml := `
capture:
  source: chrome
  url: https://example.com
  width: 800
  height: 600
preview:
  max_fps: 5
  max_delay_ms: 500
record:
  width: 640
  allow_software: true
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
server:
  listen: 0.0.0.0:9000
log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Capture.Source != SourceChrome || cfg.Capture.URL != "https://example.com" {
		t.Errorf("unexpected capture %+v", cfg.Capture)
	}
	if cfg.Capture.FPS != 30 {
		t.Errorf("unset keys should keep defaults, fps=%d", cfg.Capture.FPS)
	}
	if cfg.Preview.MaxFPS != 5 || cfg.Preview.JPEGQuality != 30 {
		t.Errorf("unexpected preview %+v", cfg.Preview)
	}
	if !cfg.Record.AllowSoftware || cfg.Record.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("unexpected record %+v", cfg.Record)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("unexpected listen %q", cfg.Server.Listen)
	}

	orch := cfg.ToOrchestratorConfig()
	if orch.RecordWidth != 640 || orch.Preview.MaxDelay != 500*time.Millisecond {
		t.Errorf("unexpected orchestrator config %+v", orch)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("capture: [not, a, map]"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Capture.Source = "webcam"
	cfg.Preview.Scale = 1.5
	cfg.Preview.JPEGQuality = 0
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"capture.source", "preview.scale", "preview.jpeg_quality", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		want ports.LogLevel
	}{
		{"debug", ports.LevelDebug},
		{"", ports.LevelInfo},
		{"info", ports.LevelInfo},
		{"warn", ports.LevelWarn},
		{"error", ports.LevelError},
		{"quiet", ports.LevelQuiet},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.name)
		if err != nil || got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, %v", tt.name, got, err)
		}
	}
}
