package mocks

import (
	"sync"

	"github.com/user/screencap/pkg/ports"
)

// Transport is a mock implementation of ports.PreviewTransport.
type Transport struct {
	SendFunc func(packet ports.PreviewPacket) error

	mu      sync.Mutex
	packets []ports.PreviewPacket
}

func (m *Transport) Send(packet ports.PreviewPacket) error {
	m.mu.Lock()
	m.packets = append(m.packets, packet)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(packet)
	}
	return nil
}

// Packets returns a copy of every packet sent so far.
func (m *Transport) Packets() []ports.PreviewPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.PreviewPacket, len(m.packets))
	copy(out, m.packets)
	return out
}

var _ ports.PreviewTransport = (*Transport)(nil)
