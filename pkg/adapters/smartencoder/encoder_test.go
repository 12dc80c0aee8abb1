package smartencoder

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/user/screencap/pkg/adapters/h264encoder"
	"github.com/user/screencap/pkg/ports"
)

type probeStub struct {
	mu      sync.Mutex
	built   []string
	working map[string]bool
	listErr error
	lists   int
	probes  []string
}

func (p *probeStub) list(ctx context.Context, path string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	return p.built, p.listErr
}

func (p *probeStub) probe(ctx context.Context, path, codec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = append(p.probes, codec)
	if p.working[codec] {
		return nil
	}
	return errors.New("cannot open device")
}

func newSelector(stub *probeStub, opts Options) *Selector {
	opts.FFmpegPath = "/opt/ffmpeg/bin/ffmpeg"
	opts.Lister = stub.list
	opts.Prober = stub.probe
	return New(opts)
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		goos     string
		software bool
		first    string
		last     string
	}{
		{"darwin", false, h264encoder.CodecVideoToolbox, h264encoder.CodecVideoToolbox},
		{"windows", true, h264encoder.CodecNVENC, h264encoder.CodecX264},
		{"linux", false, h264encoder.CodecNVENC, h264encoder.CodecQSV},
		{"linux", true, h264encoder.CodecNVENC, h264encoder.CodecX264},
	}

	for _, tt := range tests {
		got := Candidates(tt.goos, tt.software)
		if got[0] != tt.first || got[len(got)-1] != tt.last {
			t.Errorf("Candidates(%s, %v) = %v", tt.goos, tt.software, got)
		}
	}
}

func TestSelectEncoder_FirstWorkingHardware(t *testing.T) {
	candidates := Candidates(runtime.GOOS, false)
	want := candidates[len(candidates)-1]

	stub := &probeStub{
		built:   append([]string{h264encoder.CodecX264}, candidates...),
		working: map[string]bool{want: true, h264encoder.CodecX264: true},
	}
	s := newSelector(stub, Options{})

	enc, err := s.SelectEncoder(ports.MimeH264)
	if err != nil {
		t.Fatalf("SelectEncoder failed: %v", err)
	}
	if enc.Name() != want {
		t.Errorf("selected %s, want %s", enc.Name(), want)
	}
	info, ok := s.Info()
	if !ok || !info.Hardware || info.FallbackUsed {
		t.Errorf("unexpected info %+v (ok=%v)", info, ok)
	}
	if len(stub.probes) != len(candidates) {
		t.Errorf("expected %d probes, got %v", len(candidates), stub.probes)
	}
}

func TestSelectEncoder_CachesSelection(t *testing.T) {
	stub := &probeStub{
		built:   []string{h264encoder.CodecX264},
		working: map[string]bool{h264encoder.CodecX264: true},
	}
	s := newSelector(stub, Options{AllowSoftware: true})

	first, err := s.SelectEncoder(ports.MimeH264)
	if err != nil {
		t.Fatalf("SelectEncoder failed: %v", err)
	}
	second, err := s.SelectEncoder(ports.MimeH264)
	if err != nil {
		t.Fatalf("SelectEncoder failed: %v", err)
	}
	if first == second {
		t.Error("expected a fresh encoder per call")
	}
	if stub.lists != 1 || len(stub.probes) != 1 {
		t.Errorf("expected one list and one probe, got %d and %v", stub.lists, stub.probes)
	}

	s.Reset()
	if _, err := s.SelectEncoder(ports.MimeH264); err != nil {
		t.Fatalf("SelectEncoder after Reset failed: %v", err)
	}
	if stub.lists != 2 {
		t.Errorf("expected Reset to force a new probe, lists=%d", stub.lists)
	}
}

func TestSelectEncoder_SoftwareIsOptIn(t *testing.T) {
	stub := &probeStub{
		built:   []string{h264encoder.CodecX264},
		working: map[string]bool{h264encoder.CodecX264: true},
	}

	s := newSelector(stub, Options{})
	if _, err := s.SelectEncoder(ports.MimeH264); !errors.Is(err, ErrNoEncoderAvailable) {
		t.Errorf("expected ErrNoEncoderAvailable, got %v", err)
	}

	s = newSelector(stub, Options{AllowSoftware: true})
	enc, err := s.SelectEncoder(ports.MimeH264)
	if err != nil {
		t.Fatalf("SelectEncoder failed: %v", err)
	}
	if enc.Name() != h264encoder.CodecX264 {
		t.Errorf("selected %s, want libx264", enc.Name())
	}
	info, _ := s.Info()
	if info.Hardware {
		t.Error("libx264 should not be reported as hardware")
	}
}

func TestSelectEncoder_PreferredFallback(t *testing.T) {
	stub := &probeStub{
		built:   []string{h264encoder.CodecVideoToolbox, h264encoder.CodecX264},
		working: map[string]bool{h264encoder.CodecX264: true},
	}
	s := newSelector(stub, Options{Preferred: h264encoder.CodecVideoToolbox, AllowSoftware: true})

	if _, err := s.SelectEncoder(ports.MimeH264); err != nil {
		t.Fatalf("SelectEncoder failed: %v", err)
	}
	info, _ := s.Info()
	if !info.FallbackUsed {
		t.Error("expected FallbackUsed")
	}
	if stub.probes[0] != h264encoder.CodecVideoToolbox {
		t.Errorf("expected preferred encoder probed first, got %v", stub.probes)
	}
}

func TestSelectEncoder_Errors(t *testing.T) {
	t.Run("unsupported mime", func(t *testing.T) {
		s := newSelector(&probeStub{}, Options{})
		if _, err := s.SelectEncoder("video/hevc"); !errors.Is(err, ErrUnsupportedMime) {
			t.Errorf("expected ErrUnsupportedMime, got %v", err)
		}
	})

	t.Run("list failure", func(t *testing.T) {
		s := newSelector(&probeStub{listErr: errors.New("exec failed")}, Options{AllowSoftware: true})
		if _, err := s.SelectEncoder(ports.MimeH264); !errors.Is(err, ErrNoEncoderAvailable) {
			t.Errorf("expected ErrNoEncoderAvailable, got %v", err)
		}
		if _, ok := s.Info(); ok {
			t.Error("failed selection should not be cached")
		}
	})
}
