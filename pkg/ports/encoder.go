package ports

// MimeH264 is the MIME type of H.264/AVC elementary streams.
const MimeH264 = "video/avc"

// ColorFormat identifies the raw input layout an encoder expects.
type ColorFormat int

const (
	// ColorFormatNV12 is YUV 4:2:0 with a full Y plane and interleaved UV plane.
	ColorFormatNV12 ColorFormat = iota
	// ColorFormatI420 is YUV 4:2:0 with separate U and V planes.
	ColorFormatI420
)

// String returns the ffmpeg pixel format name.
func (c ColorFormat) String() string {
	switch c {
	case ColorFormatNV12:
		return "nv12"
	case ColorFormatI420:
		return "yuv420p"
	default:
		return "unknown"
	}
}

// EncoderFormat configures a hardware encoder.
type EncoderFormat struct {
	Mime             string
	Width            int
	Height           int
	Bitrate          int // bits per second
	FrameRate        int
	KeyFrameInterval int // seconds between key frames
	ColorFormat      ColorFormat
}

// OutputKind classifies the result of HardwareEncoder.DequeueOutput.
type OutputKind int

const (
	// OutputTryAgain means no output is available yet.
	OutputTryAgain OutputKind = iota
	// OutputFormatChanged carries the stream format; it precedes the first buffer.
	OutputFormatChanged
	// OutputBuffer carries one encoded access unit.
	OutputBuffer
	// OutputEndOfStream means every submitted frame has been emitted.
	OutputEndOfStream
)

// BufferFlags describe an encoded buffer or a submitted input.
type BufferFlags int

const (
	// FlagKeyFrame marks a sync sample.
	FlagKeyFrame BufferFlags = 1 << iota
	// FlagCodecConfig marks a buffer carrying only parameter sets.
	FlagCodecConfig
	// FlagEndOfStream marks the final input or output.
	FlagEndOfStream
)

// TrackFormat describes an encoded video track.
type TrackFormat struct {
	Mime   string
	Width  int
	Height int
	SPS    [][]byte // sequence parameter sets, without start codes
	PPS    [][]byte // picture parameter sets, without start codes
}

// OutputResult is one dequeued encoder output.
type OutputResult struct {
	Kind   OutputKind
	Format TrackFormat // valid for OutputFormatChanged
	Data   []byte      // valid for OutputBuffer, Annex B
	PtsUs  int64
	Flags  BufferFlags
}

// HardwareEncoder abstracts a platform video encoder with an input slot /
// output queue model.
type HardwareEncoder interface {
	// Name identifies the backing codec implementation.
	Name() string

	// Configure applies the stream format. It must be called before Start.
	Configure(format EncoderFormat) error

	// Start begins accepting input.
	Start() error

	// DequeueInputSlot waits up to timeoutUs for a free input slot.
	DequeueInputSlot(timeoutUs int64) (slot int, ok bool)

	// Submit queues raw pixel data for the given slot.
	Submit(slot int, data []byte, ptsUs int64, flags BufferFlags) error

	// DequeueOutput waits up to timeoutUs for encoder output.
	DequeueOutput(timeoutUs int64) (OutputResult, error)

	// SignalEndOfStream tells the encoder no more input will arrive.
	SignalEndOfStream() error

	// Stop halts encoding. Release must still be called.
	Stop() error

	// Release frees all resources. Calling it twice is a no-op.
	Release()
}

// EncoderSelector finds an available encoder for a MIME type.
type EncoderSelector interface {
	SelectEncoder(mime string) (HardwareEncoder, error)
}
