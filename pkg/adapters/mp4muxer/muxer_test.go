package mp4muxer

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/screencap/pkg/adapters/codecdetect"
	"github.com/user/screencap/pkg/ports"
)

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1f, 0xe9, 0x02, 0xc1, 0x2c, 0x80}
	testPPS = []byte{0x68, 0xce, 0x06, 0xe2}
)

func testFormat() ports.TrackFormat {
	return ports.TrackFormat{
		Mime:   ports.MimeH264,
		Width:  720,
		Height: 480,
		SPS:    [][]byte{testSPS},
		PPS:    [][]byte{testPPS},
	}
}

func annexB(nalus ...[]byte) []byte {
	var buf bytes.Buffer
	for _, n := range nalus {
		buf.Write([]byte{0, 0, 0, 1})
		buf.Write(n)
	}
	return buf.Bytes()
}

func TestMuxer_WritesFragmentedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")

	m, err := New(path, 30)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Release()

	track, err := m.AddTrack(testFormat())
	if err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		info := ports.SampleInfo{PtsUs: int64(i) * 33333}
		var data []byte
		if i%5 == 0 {
			info.Flags = ports.FlagKeyFrame
			data = annexB(testSPS, testPPS, []byte{0x65, 0x88, 0x84, byte(i)})
		} else {
			data = annexB([]byte{0x41, 0x9a, 0x02, byte(i)})
		}
		if err := m.WriteSample(track, data, info); err != nil {
			t.Fatalf("WriteSample %d failed: %v", i, err)
		}
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.Samples() != 10 {
		t.Errorf("expected 10 samples, got %d", m.Samples())
	}
	m.Release()

	report, err := codecdetect.InspectFile(path)
	if err != nil {
		t.Fatalf("InspectFile failed: %v", err)
	}
	if report.Codec != codecdetect.CodecH264 {
		t.Errorf("expected h264, got %s", report.Codec)
	}
	if report.VideoTracks != 1 {
		t.Errorf("expected 1 video track, got %d", report.VideoTracks)
	}
	if report.Width != 720 || report.Height != 480 {
		t.Errorf("expected 720x480, got %dx%d", report.Width, report.Height)
	}
	if !report.Fragmented {
		t.Error("expected fragmented file")
	}
	if report.Fragments != 2 {
		t.Errorf("expected 2 fragments (one per GOP), got %d", report.Fragments)
	}
	if report.Samples != 10 {
		t.Errorf("expected 10 samples, got %d", report.Samples)
	}
	if report.Duration <= 0 {
		t.Errorf("expected positive duration, got %v", report.Duration)
	}
}

func TestMuxer_StateErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("start without track", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "a.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		if err := m.Start(); !errors.Is(err, ErrNoTrack) {
			t.Errorf("expected ErrNoTrack, got %v", err)
		}
	})

	t.Run("write before start", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "b.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		if _, err := m.AddTrack(testFormat()); err != nil {
			t.Fatal(err)
		}
		err = m.WriteSample(0, annexB([]byte{0x65, 0x88}), ports.SampleInfo{Flags: ports.FlagKeyFrame})
		if !errors.Is(err, ErrNotStarted) {
			t.Errorf("expected ErrNotStarted, got %v", err)
		}
	})

	t.Run("second track", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "c.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		if _, err := m.AddTrack(testFormat()); err != nil {
			t.Fatal(err)
		}
		if _, err := m.AddTrack(testFormat()); !errors.Is(err, ErrTrackExists) {
			t.Errorf("expected ErrTrackExists, got %v", err)
		}
	})

	t.Run("missing parameter sets", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "d.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		format := testFormat()
		format.PPS = nil
		if _, err := m.AddTrack(format); !errors.Is(err, ErrMissingParameterSets) {
			t.Errorf("expected ErrMissingParameterSets, got %v", err)
		}
	})

	t.Run("non-increasing pts", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "e.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		if _, err := m.AddTrack(testFormat()); err != nil {
			t.Fatal(err)
		}
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		key := annexB([]byte{0x65, 0x88})
		if err := m.WriteSample(0, key, ports.SampleInfo{PtsUs: 1000, Flags: ports.FlagKeyFrame}); err != nil {
			t.Fatal(err)
		}
		if err := m.WriteSample(0, annexB([]byte{0x41, 0x9a}), ports.SampleInfo{PtsUs: 1000}); err == nil {
			t.Error("expected error for repeated pts")
		}
	})

	t.Run("closed after stop", func(t *testing.T) {
		m, err := New(filepath.Join(dir, "f.mp4"), 30)
		if err != nil {
			t.Fatal(err)
		}
		defer m.Release()
		if _, err := m.AddTrack(testFormat()); err != nil {
			t.Fatal(err)
		}
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		if err := m.Stop(); err != nil {
			t.Fatal(err)
		}
		if err := m.Stop(); err != nil {
			t.Errorf("second Stop should be a no-op, got %v", err)
		}
		if err := m.WriteSample(0, annexB([]byte{0x65}), ports.SampleInfo{}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestMuxer_LongRecordingDecodeTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.mp4")
	m, err := New(path, 30)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Release()

	track, _ := m.AddTrack(testFormat())
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := (14 * time.Hour).Microseconds()
	for i := int64(0); i < 2; i++ {
		data := annexB(testSPS, testPPS, []byte{0x65, 0x88, 0x84, byte(i)})
		info := ports.SampleInfo{PtsUs: start + i*33_333, Flags: ports.FlagKeyFrame}
		if err := m.WriteSample(track, data, info); err != nil {
			t.Fatalf("WriteSample %d failed: %v", i, err)
		}
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	m.Release()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}

	var times []uint64
	for _, seg := range parsed.Segments {
		for _, frag := range seg.Fragments {
			times = append(times, frag.Moof.Traf.Tfdt.BaseMediaDecodeTime())
		}
	}
	want := []uint64{uint64(start) * Timescale / 1_000_000, uint64(start+33_333) * Timescale / 1_000_000}
	if len(times) != len(want) {
		t.Fatalf("expected %d fragments, got %d", len(want), len(times))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("fragment %d decode time = %d, want %d", i, times[i], want[i])
		}
	}
}

func TestTicks(t *testing.T) {
	tests := []struct {
		name string
		us   int64
		ts   uint64
		dur  uint32
	}{
		{"one frame", 33_333, 2_999, 2_999},
		{"one second", 1_000_000, 90_000, 90_000},
		{"past 32 bits", (14 * time.Hour).Microseconds(), 4_536_000_000, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toTicks(tt.us); got != tt.ts {
				t.Errorf("toTicks(%d) = %d, want %d", tt.us, got, tt.ts)
			}
			if got := durationTicks(tt.us); got != tt.dur {
				t.Errorf("durationTicks(%d) = %d, want %d", tt.us, got, tt.dur)
			}
		})
	}
}

func TestConvertToAVCC(t *testing.T) {
	data := annexB(testSPS, testPPS, []byte{0x09, 0xf0}, []byte{0x65, 0x01, 0x02})
	got := convertToAVCC(data)
	want := []byte{0, 0, 0, 3, 0x65, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Errorf("convertToAVCC = %x, want %x", got, want)
	}
}

func TestFactory_Create(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factory.mp4")
	m, err := Factory{FrameRate: 30}.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m.Release()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}
