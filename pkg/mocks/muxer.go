package mocks

import (
	"sync"

	"github.com/user/screencap/pkg/ports"
)

// Muxer is a mock implementation of ports.Muxer.
type Muxer struct {
	Path string

	AddTrackFunc    func(format ports.TrackFormat) (int, error)
	StartFunc       func() error
	WriteSampleFunc func(track int, data []byte, info ports.SampleInfo) error
	StopFunc        func() error

	mu           sync.Mutex
	Tracks       []ports.TrackFormat
	StartCalled  bool
	Samples      []SampleCall
	StopCalls    int
	ReleaseCalls int
}

// SampleCall records a call to WriteSample.
type SampleCall struct {
	Track int
	Size  int
	PtsUs int64
	Flags ports.BufferFlags
}

func (m *Muxer) AddTrack(format ports.TrackFormat) (int, error) {
	if m.AddTrackFunc != nil {
		return m.AddTrackFunc(format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tracks = append(m.Tracks, format)
	return len(m.Tracks) - 1, nil
}

func (m *Muxer) Start() error {
	m.mu.Lock()
	m.StartCalled = true
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

func (m *Muxer) WriteSample(track int, data []byte, info ports.SampleInfo) error {
	m.mu.Lock()
	m.Samples = append(m.Samples, SampleCall{Track: track, Size: len(data), PtsUs: info.PtsUs, Flags: info.Flags})
	m.mu.Unlock()
	if m.WriteSampleFunc != nil {
		return m.WriteSampleFunc(track, data, info)
	}
	return nil
}

func (m *Muxer) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *Muxer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
}

// Snapshot returns copies of the recorded tracks and samples.
func (m *Muxer) Snapshot() ([]ports.TrackFormat, []SampleCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.TrackFormat(nil), m.Tracks...), append([]SampleCall(nil), m.Samples...)
}

var _ ports.Muxer = (*Muxer)(nil)

// MuxerFactory is a mock implementation of ports.MuxerFactory.
// When FS is set, Create writes an empty file at the path so removal can be
// observed.
type MuxerFactory struct {
	FS         *FileSystem
	CreateFunc func(path string) (ports.Muxer, error)

	mu      sync.Mutex
	Created []*Muxer
}

func (m *MuxerFactory) Create(path string) (ports.Muxer, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(path)
	}
	if m.FS != nil {
		if err := m.FS.WriteFile(path, nil); err != nil {
			return nil, err
		}
	}
	mux := &Muxer{Path: path}
	m.mu.Lock()
	m.Created = append(m.Created, mux)
	m.mu.Unlock()
	return mux, nil
}

// Last returns the most recently created muxer.
func (m *MuxerFactory) Last() *Muxer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Created) == 0 {
		return nil
	}
	return m.Created[len(m.Created)-1]
}

var _ ports.MuxerFactory = (*MuxerFactory)(nil)
