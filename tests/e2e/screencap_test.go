// Package e2e contains end-to-end tests for the screencap CLI.
// The binary is built from ./cmd/screencap unless SCREENCAP_BINARY points at
// a pre-built one.
package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipUnlessE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("SCREENCAP_E2E") != "1" {
		t.Skip("Skipping E2E test (set SCREENCAP_E2E=1 to run)")
	}
}

// buildBinary returns the path of the CLI under test.
func buildBinary(t *testing.T) string {
	t.Helper()
	if path := os.Getenv("SCREENCAP_BINARY"); path != "" {
		return path
	}

	name := "screencap-test"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	bin := filepath.Join(t.TempDir(), name)

	buildCmd := exec.Command("go", "build", "-o", bin, "./cmd/screencap")
	buildCmd.Dir = getProjectRoot(t)
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\n%s", err, out)
	}
	return bin
}

func run(t *testing.T, bin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "LANG=C", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// TestVersionCommand tests both the version subcommand and flag
func TestVersionCommand(t *testing.T) {
	skipUnlessE2E(t)
	bin := buildBinary(t)

	for _, args := range [][]string{{"version"}, {"--version"}} {
		out, _, err := run(t, bin, args...)
		if err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
		if !strings.Contains(out, "screencap version") {
			t.Errorf("%v: unexpected output %q", args, out)
		}
	}
}

// TestRecordAndInspect records the test pattern and inspects the result
func TestRecordAndInspect(t *testing.T) {
	skipUnlessE2E(t)
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	bin := buildBinary(t)

	output := filepath.Join(t.TempDir(), "pattern.mp4")
	stdout, stderr, err := run(t, bin,
		"--quiet",
		"record",
		"--source", "pattern",
		"--width", "320",
		"--height", "240",
		"--allow-software",
		"-d", "2s",
		"-o", output,
	)
	if err != nil {
		t.Fatalf("Record command failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Output file not found: %v", err)
	}
	if len(data) < 8 || string(data[4:8]) != "ftyp" {
		t.Error("Invalid MP4 file")
	}

	out, _, err := run(t, bin, "inspect", output)
	if err != nil {
		t.Fatalf("Inspect command failed: %v", err)
	}
	for _, want := range []string{"Codec: h264", "Video tracks: 1", "Size: 720x540", "Fragmented: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	frame := filepath.Join(t.TempDir(), "first.png")
	if _, stderr, err := run(t, bin, "inspect", "--frame", "0", "--out", frame, output); err != nil {
		t.Fatalf("Frame extraction failed: %v\n%s", err, stderr)
	}
	png, err := os.ReadFile(frame)
	if err != nil {
		t.Fatalf("Frame not written: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("extracted frame is not a PNG")
	}

	// A second run must refuse to overwrite the file
	if _, _, err := run(t, bin, "--quiet", "record", "-d", "1s", "-o", output); err == nil {
		t.Error("expected record to refuse an existing output file")
	}
}

// TestInspectMissingFile tests the error path of inspect
func TestInspectMissingFile(t *testing.T) {
	skipUnlessE2E(t)
	bin := buildBinary(t)

	if _, _, err := run(t, bin, "inspect", filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected inspect to fail for a missing file")
	}
	if _, _, err := run(t, bin, "inspect"); err == nil {
		t.Error("expected inspect to fail without an argument")
	}
}

// TestInvalidConfig tests that a bad configuration file is rejected
func TestInvalidConfig(t *testing.T) {
	skipUnlessE2E(t)
	bin := buildBinary(t)

	cfg := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfg, []byte("capture:\n  source: webcam\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, stderr, err := run(t, bin, "--config", cfg, "record", "-d", "1s")
	if err == nil {
		t.Fatal("expected record to fail with an invalid config")
	}
	if !strings.Contains(stderr, "capture.source") {
		t.Errorf("expected the invalid key in the error, got %q", stderr)
	}
}

func getProjectRoot(t *testing.T) string {
	// Start from current working directory and find go.mod
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("Could not find project root (go.mod)")
		}
		dir = parent
	}
}
