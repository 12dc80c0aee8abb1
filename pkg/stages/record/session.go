package record

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Start while a session is active.
	ErrAlreadyStarted = errors.New("record: already started")

	// ErrNoEncoder is returned when no encoder supports H.264.
	ErrNoEncoder = errors.New("record: no suitable encoder")

	// ErrNotRecording is returned by Stop and Abort without an active session.
	ErrNotRecording = errors.New("record: not recording")

	// ErrNoFrames ends a session that was stopped before the encoder
	// produced any output.
	ErrNoFrames = errors.New("record: no frames recorded")
)

// State is the recorder lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateEncoding
	StateDraining
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateEncoding:
		return "encoding"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a session is running in this state.
func (s State) Active() bool {
	return s == StateConfiguring || s == StateEncoding || s == StateDraining
}

// Session describes one recording.
type Session struct {
	ID               string
	Width            int
	Height           int
	Bitrate          int
	FrameIndex       int64
	TrackIndex       int
	StartTimestampUs int64
	OutputPath       string
	Encoder          string
	StartedAt        time.Time
}

// Result is the outcome of the most recent session.
type Result struct {
	State          State
	Path           string
	FramesEncoded  int64
	SamplesWritten int64
	Duration       time.Duration
	Err            error
}

// Status is a point-in-time view of the recorder.
type Status struct {
	State          State
	Session        *Session
	Queued         int
	FramesEncoded  int64
	FramesDropped  int64
	SamplesWritten int64
	EncodeFPS      int
}
