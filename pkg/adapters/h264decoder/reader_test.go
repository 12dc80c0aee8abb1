package h264decoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/screencap/pkg/adapters/mp4muxer"
	"github.com/user/screencap/pkg/ports"
)

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1e, 0xe9, 0x05}
	testPPS = []byte{0x68, 0xce, 0x06, 0xe2}
)

// writeRecording writes frames samples at 10 fps with a key frame every gop.
func writeRecording(t *testing.T, frames, gop int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.mp4")

	m, err := mp4muxer.New(path, 10)
	if err != nil {
		t.Fatalf("mp4muxer.New failed: %v", err)
	}
	defer m.Release()

	format := ports.TrackFormat{
		Mime:   ports.MimeH264,
		Width:  320,
		Height: 240,
		SPS:    [][]byte{testSPS},
		PPS:    [][]byte{testPPS},
	}
	if _, err := m.AddTrack(format); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < frames; i++ {
		nalu := []byte{0, 0, 0, 1, 0x41, 0x9a, byte(i)}
		flags := ports.BufferFlags(0)
		if i%gop == 0 {
			nalu[4] = 0x65
			flags = ports.FlagKeyFrame
		}
		if err := m.WriteSample(0, nalu, ports.SampleInfo{PtsUs: int64(i) * 100000, Flags: flags}); err != nil {
			t.Fatalf("WriteSample failed: %v", err)
		}
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	return path
}

func TestReadFile_Fragmented(t *testing.T) {
	path := writeRecording(t, 7, 3)

	samples, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(samples) != 7 {
		t.Fatalf("expected 7 samples, got %d", len(samples))
	}

	for i, s := range samples {
		wantSync := i%3 == 0
		if s.Sync != wantSync {
			t.Errorf("sample %d: sync = %v, want %v", i, s.Sync, wantSync)
		}
		if want := time.Duration(i) * 100 * time.Millisecond; s.DecodeTime != want {
			t.Errorf("sample %d: decode time %v, want %v", i, s.DecodeTime, want)
		}
		if s.Duration != 100*time.Millisecond {
			t.Errorf("sample %d: duration %v, want 100ms", i, s.Duration)
		}
		if last := s.Data[len(s.Data)-1]; last != byte(i) {
			t.Errorf("sample %d: payload ends with %d", i, last)
		}
	}

	want := append([]byte{0, 0, 0, 1}, testSPS...)
	want = append(want, 0, 0, 0, 1)
	want = append(want, testPPS...)
	want = append(want, 0, 0, 0, 1, 0x65, 0x9a, 0)
	if !bytes.Equal(samples[0].Data, want) {
		t.Errorf("key frame data = %x, want %x", samples[0].Data, want)
	}
	if !bytes.Equal(samples[1].Data, []byte{0, 0, 0, 1, 0x41, 0x9a, 1}) {
		t.Errorf("delta frame should not carry parameter sets: %x", samples[1].Data)
	}
}

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadSamples_Garbage(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "garbage-*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("definitely not an mp4 file"))
	f.Seek(0, 0)
	defer f.Close()

	if _, err := ReadSamples(f); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestAvccToAnnexB(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"single", []byte{0, 0, 0, 2, 0x65, 0x88}, []byte{0, 0, 0, 1, 0x65, 0x88}},
		{"two", []byte{0, 0, 0, 1, 0x09, 0, 0, 0, 2, 0x41, 0x9a}, []byte{0, 0, 0, 1, 0x09, 0, 0, 0, 1, 0x41, 0x9a}},
		{"truncated", []byte{0, 0, 0, 9, 0x65}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := avccToAnnexB(tt.in); !bytes.Equal(got, tt.want) {
				t.Errorf("avccToAnnexB(%x) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestStream(t *testing.T) {
	samples := []Sample{
		{Data: []byte{1}, Sync: true},
		{Data: []byte{2}},
		{Data: []byte{3}, Sync: true},
		{Data: []byte{4}},
		{Data: []byte{5}},
	}

	tests := []struct {
		index    int
		want     []byte
		position int
	}{
		{0, []byte{1}, 0},
		{1, []byte{1, 2}, 1},
		{2, []byte{3}, 0},
		{4, []byte{3, 4, 5}, 2},
	}
	for _, tt := range tests {
		got, pos, err := Stream(samples, tt.index)
		if err != nil {
			t.Fatalf("Stream(%d) failed: %v", tt.index, err)
		}
		if !bytes.Equal(got, tt.want) || pos != tt.position {
			t.Errorf("Stream(%d) = %v@%d, want %v@%d", tt.index, got, pos, tt.want, tt.position)
		}
	}

	if _, _, err := Stream(samples, 5); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("expected ErrFrameOutOfRange, got %v", err)
	}
	if _, _, err := Stream(samples, -1); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("expected ErrFrameOutOfRange, got %v", err)
	}
	if _, _, err := Stream(samples[1:], 0); !errors.Is(err, ErrNoKeyFrame) {
		t.Errorf("expected ErrNoKeyFrame, got %v", err)
	}
}
