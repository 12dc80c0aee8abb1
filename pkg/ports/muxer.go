package ports

// SampleInfo describes one encoded sample handed to a Muxer.
type SampleInfo struct {
	PtsUs int64
	Flags BufferFlags
}

// Muxer writes encoded samples into a container file.
type Muxer interface {
	// AddTrack registers a track and returns its index. Must precede Start.
	AddTrack(format TrackFormat) (int, error)

	// Start writes the container header.
	Start() error

	// WriteSample appends an Annex B access unit to the track.
	WriteSample(track int, data []byte, info SampleInfo) error

	// Stop flushes pending samples and finalizes the container.
	Stop() error

	// Release closes the underlying file. Calling it twice is a no-op.
	Release()
}

// MuxerFactory opens a muxer bound to an output path.
type MuxerFactory interface {
	Create(path string) (Muxer, error)
}
