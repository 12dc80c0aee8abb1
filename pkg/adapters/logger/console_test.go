package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/screencap/pkg/ports"
)

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      ports.LogLevel
		wantStdout []string
		wantStderr []string
	}{
		{ports.LevelDebug, []string{"debug 1", "info 2"}, []string{"warn 3", "error 4"}},
		{ports.LevelInfo, []string{"info 2"}, []string{"warn 3", "error 4"}},
		{ports.LevelWarn, nil, []string{"warn 3", "error 4"}},
		{ports.LevelQuiet, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			l := NewConsoleWriter(tt.level, &stdout, &stderr)

			l.Debug("debug %d", 1)
			l.Info("info %d", 2)
			l.Warn("warn %d", 3)
			l.Error("error %d", 4)

			assertLines(t, "stdout", stdout.String(), tt.wantStdout)
			assertLines(t, "stderr", stderr.String(), tt.wantStderr)
		})
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var stdout bytes.Buffer
	l := NewConsoleWriter(ports.LevelInfo, &stdout, &stdout)

	l.WithComponent("recorder").Info("Recording started: %s", "/tmp/a.mp4")

	got := strings.TrimSpace(stdout.String())
	if got != "[recorder] Recording started: /tmp/a.mp4" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestNoopLogger(t *testing.T) {
	var l ports.Logger = NewNoop()
	if l.WithComponent("x") != l {
		t.Error("noop WithComponent should return itself")
	}
	l.Error("ignored %d", 1)
}

func assertLines(t *testing.T, name, got string, want []string) {
	t.Helper()
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(got), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != len(want) {
		t.Fatalf("%s: expected %v, got %v", name, want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("%s[%d]: expected %q, got %q", name, i, want[i], lines[i])
		}
	}
}
