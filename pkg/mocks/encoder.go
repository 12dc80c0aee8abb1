package mocks

import (
	"sync"

	"github.com/user/screencap/pkg/ports"
)

// HardwareEncoder is a mock implementation of ports.HardwareEncoder.
// Without overrides it behaves like a well-formed codec: the first output
// is a format change, then one buffer per submitted frame in submission
// order, with a key frame every KeyFrameEvery frames.
type HardwareEncoder struct {
	ConfigureFunc        func(format ports.EncoderFormat) error
	StartFunc            func() error
	DequeueInputSlotFunc func(timeoutUs int64) (int, bool)
	SubmitFunc           func(slot int, data []byte, ptsUs int64, flags ports.BufferFlags) error
	DequeueOutputFunc    func(timeoutUs int64) (ports.OutputResult, error)
	StopFunc             func() error

	// KeyFrameEvery controls the simulated GOP length (default 150).
	KeyFrameEvery int

	mu         sync.Mutex
	format     ports.EncoderFormat
	pending    []SubmitCall
	formatSent bool
	eos        bool
	emitted    int
	nextSlot   int

	// Recorded calls for verification
	Configured   *ports.EncoderFormat
	StartCalled  bool
	SubmitCalls  []SubmitCall
	EOSSignalled bool
	StopCalls    int
	ReleaseCalls int
}

// SubmitCall records a call to Submit.
type SubmitCall struct {
	Slot  int
	Size  int
	PtsUs int64
	Flags ports.BufferFlags
}

func (m *HardwareEncoder) Name() string {
	return "mock"
}

func (m *HardwareEncoder) Configure(format ports.EncoderFormat) error {
	m.mu.Lock()
	m.format = format
	m.Configured = &format
	m.mu.Unlock()
	if m.ConfigureFunc != nil {
		return m.ConfigureFunc(format)
	}
	return nil
}

func (m *HardwareEncoder) Start() error {
	m.mu.Lock()
	m.StartCalled = true
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

func (m *HardwareEncoder) DequeueInputSlot(timeoutUs int64) (int, bool) {
	if m.DequeueInputSlotFunc != nil {
		return m.DequeueInputSlotFunc(timeoutUs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSlot++
	return m.nextSlot % 4, true
}

func (m *HardwareEncoder) Submit(slot int, data []byte, ptsUs int64, flags ports.BufferFlags) error {
	call := SubmitCall{Slot: slot, Size: len(data), PtsUs: ptsUs, Flags: flags}
	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, call)
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(slot, data, ptsUs, flags)
	}
	m.mu.Lock()
	m.pending = append(m.pending, call)
	m.mu.Unlock()
	return nil
}

func (m *HardwareEncoder) DequeueOutput(timeoutUs int64) (ports.OutputResult, error) {
	if m.DequeueOutputFunc != nil {
		return m.DequeueOutputFunc(timeoutUs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		if m.eos {
			return ports.OutputResult{Kind: ports.OutputEndOfStream}, nil
		}
		return ports.OutputResult{Kind: ports.OutputTryAgain}, nil
	}

	if !m.formatSent {
		m.formatSent = true
		return ports.OutputResult{
			Kind: ports.OutputFormatChanged,
			Format: ports.TrackFormat{
				Mime:   m.format.Mime,
				Width:  m.format.Width,
				Height: m.format.Height,
				SPS:    [][]byte{{0x67, 0x42, 0x00, 0x1f}},
				PPS:    [][]byte{{0x68, 0xce, 0x3c, 0x80}},
			},
		}, nil
	}

	in := m.pending[0]
	m.pending = m.pending[1:]

	every := m.KeyFrameEvery
	if every <= 0 {
		every = 150
	}
	var flags ports.BufferFlags
	nal := byte(0x41)
	if m.emitted%every == 0 {
		flags |= ports.FlagKeyFrame
		nal = 0x65
	}
	m.emitted++

	return ports.OutputResult{
		Kind:  ports.OutputBuffer,
		Data:  []byte{0, 0, 0, 1, nal, 0x88, 0x84, 0x00},
		PtsUs: in.PtsUs,
		Flags: flags,
	}, nil
}

func (m *HardwareEncoder) SignalEndOfStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eos = true
	m.EOSSignalled = true
	return nil
}

func (m *HardwareEncoder) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *HardwareEncoder) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
}

// Submits returns a copy of the recorded Submit calls.
func (m *HardwareEncoder) Submits() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitCall(nil), m.SubmitCalls...)
}

// Releases returns how many times Release was called.
func (m *HardwareEncoder) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReleaseCalls
}

var _ ports.HardwareEncoder = (*HardwareEncoder)(nil)

// EncoderSelector is a mock implementation of ports.EncoderSelector.
type EncoderSelector struct {
	Encoder            ports.HardwareEncoder
	SelectEncoderFunc  func(mime string) (ports.HardwareEncoder, error)
	SelectEncoderCalls []string
}

func (m *EncoderSelector) SelectEncoder(mime string) (ports.HardwareEncoder, error) {
	m.SelectEncoderCalls = append(m.SelectEncoderCalls, mime)
	if m.SelectEncoderFunc != nil {
		return m.SelectEncoderFunc(mime)
	}
	if m.Encoder == nil {
		return &HardwareEncoder{}, nil
	}
	return m.Encoder, nil
}

var _ ports.EncoderSelector = (*EncoderSelector)(nil)
