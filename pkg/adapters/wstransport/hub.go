// Package wstransport broadcasts preview packets to WebSocket viewers.
//
// Each packet is one binary message: two big-endian int64 millisecond
// timestamps (capture, send) followed by the JPEG payload.
package wstransport

import (
	"encoding/binary"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/screencap/pkg/ports"
)

// HeaderSize is the length of the timestamp header preceding the payload.
const HeaderSize = 16

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("wstransport: hub closed")

	// ErrShortMessage is returned by DecodePacket for truncated input.
	ErrShortMessage = errors.New("wstransport: message shorter than header")
)

// EncodePacket serialises a packet into a single message.
func EncodePacket(p ports.PreviewPacket) []byte {
	msg := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint64(msg[0:8], uint64(p.CaptureTimestampMs))
	binary.BigEndian.PutUint64(msg[8:16], uint64(p.SendTimestampMs))
	copy(msg[HeaderSize:], p.Payload)
	return msg
}

// DecodePacket parses a message produced by EncodePacket.
func DecodePacket(msg []byte) (ports.PreviewPacket, error) {
	if len(msg) < HeaderSize {
		return ports.PreviewPacket{}, ErrShortMessage
	}
	return ports.PreviewPacket{
		CaptureTimestampMs: int64(binary.BigEndian.Uint64(msg[0:8])),
		SendTimestampMs:    int64(binary.BigEndian.Uint64(msg[8:16])),
		Payload:            msg[HeaderSize:],
	}, nil
}

// Options configures the hub.
type Options struct {
	// ClientBuffer is the number of packets queued per viewer before
	// packets for that viewer are dropped. Defaults to 4.
	ClientBuffer int
	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

// Stats reports hub activity.
type Stats struct {
	Clients   int
	Broadcast int64
	Dropped   int64
}

// Hub implements ports.PreviewTransport and serves the viewer endpoint.
type Hub struct {
	logger   ports.Logger
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	broadcast atomic.Int64
	dropped   atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// New creates a hub.
func New(opts Options, logger ports.Logger) *Hub {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 4
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}
	return &Hub{
		logger: logger.WithComponent("wstransport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     check,
		},
		buffer:  opts.ClientBuffer,
		clients: make(map[*client]struct{}),
	}
}

// Send queues the packet for every connected viewer. Viewers whose queue is
// full miss this packet.
func (h *Hub) Send(p ports.PreviewPacket) error {
	msg := EncodePacket(p)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	h.broadcast.Add(1)
	return nil
}

// ServeHTTP upgrades the request and streams packets until the viewer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Preview viewer connected: %s (%d viewers)", conn.RemoteAddr().String(), count)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards viewer messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Preview viewer read failed: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				h.logger.Debug("Preview viewer write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info("Preview viewer disconnected (%d viewers)", count)
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.Clients(),
		Broadcast: h.broadcast.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close disconnects all viewers. Later Sends return ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	return nil
}

var _ ports.PreviewTransport = (*Hub)(nil)
