package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/screencap/pkg/adapters/osfilesystem"
	"github.com/user/screencap/pkg/orchestrator"
)

func TestReserveOutput(t *testing.T) {
	fs := osfilesystem.New()
	dir := t.TempDir()

	t.Run("new path", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "out.mp4")
		if err := reserveOutput(fs, path); err != nil {
			t.Fatalf("reserveOutput failed: %v", err)
		}
		st, err := os.Stat(path)
		if err != nil {
			t.Fatalf("reserved file missing: %v", err)
		}
		if st.Size() != 0 {
			t.Errorf("reserved file should be empty, got %d bytes", st.Size())
		}
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(dir, "taken.mp4")
		if err := os.WriteFile(path, []byte("keep"), 0644); err != nil {
			t.Fatal(err)
		}
		err := reserveOutput(fs, path)
		if !errors.Is(err, orchestrator.ErrFileExists) {
			t.Errorf("expected ErrFileExists, got %v", err)
		}
		if data, _ := os.ReadFile(path); string(data) != "keep" {
			t.Errorf("existing file was modified: %q", data)
		}
	})
}
