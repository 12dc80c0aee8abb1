package ports

// PreviewPacket is one compressed preview image.
type PreviewPacket struct {
	CaptureTimestampMs int64  // when the frame was captured
	SendTimestampMs    int64  // when the packet was handed to the transport
	Payload            []byte // JPEG data
}

// PreviewTransport streams preview packets to a remote viewer.
// Send is fire-and-forget and must not block the caller for long.
type PreviewTransport interface {
	Send(packet PreviewPacket) error
}
