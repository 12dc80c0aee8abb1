// Package mp4muxer writes H.264 samples into a fragmented MP4 file as they
// arrive. The header is written on Start and one fragment is flushed per
// group of pictures, so a recording interrupted mid-way stays playable up to
// its last complete fragment.
package mp4muxer

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/screencap/pkg/ports"
)

// Timescale is the media timescale of the video track.
const Timescale = 90000

var (
	// ErrTrackExists is returned when a second track is added.
	ErrTrackExists = errors.New("mp4muxer: only one video track is supported")

	// ErrNoTrack is returned by Start before AddTrack.
	ErrNoTrack = errors.New("mp4muxer: no track added")

	// ErrNotStarted is returned by WriteSample before Start.
	ErrNotStarted = errors.New("mp4muxer: not started")

	// ErrMissingParameterSets is returned for a track format without SPS or PPS.
	ErrMissingParameterSets = errors.New("mp4muxer: SPS and PPS required")

	// ErrClosed is returned after Stop or Release.
	ErrClosed = errors.New("mp4muxer: closed")
)

type pendingSample struct {
	data     []byte
	ptsUs    int64
	keyframe bool
}

// Muxer implements ports.Muxer.
type Muxer struct {
	path      string
	frameRate int

	mu       sync.Mutex
	file     *os.File
	w        *bufio.Writer
	init     *mp4.InitSegment
	track    *ports.TrackFormat
	started  bool
	closed   bool
	frag     *mp4.Fragment
	seq      uint32
	pending  *pendingSample
	samples  int
	released bool
}

// New opens path for writing. frameRate sets the duration of the final
// sample.
func New(path string, frameRate int) (*Muxer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if frameRate <= 0 {
		frameRate = 30
	}
	return &Muxer{
		path:      path,
		frameRate: frameRate,
		file:      f,
		w:         bufio.NewWriterSize(f, 256*1024),
	}, nil
}

// AddTrack registers the video track.
func (m *Muxer) AddTrack(format ports.TrackFormat) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return -1, ErrClosed
	}
	if m.track != nil {
		return -1, ErrTrackExists
	}
	if format.Mime != ports.MimeH264 {
		return -1, fmt.Errorf("mp4muxer: unsupported mime %s", format.Mime)
	}
	if len(format.SPS) == 0 || len(format.PPS) == 0 {
		return -1, ErrMissingParameterSets
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(Timescale, "video", "und")
	trak := init.Moov.Trak

	avcC := createAvcC(format.SPS, format.PPS)
	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(format.Width), uint16(format.Height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)

	trak.Tkhd.Width = mp4.Fixed32(format.Width << 16)
	trak.Tkhd.Height = mp4.Fixed32(format.Height << 16)

	m.init = init
	m.track = &format
	return 0, nil
}

// createAvcC builds the decoder configuration record directly from the
// parameter sets. Profile and level are read from the SPS header bytes.
func createAvcC(sps, pps [][]byte) *mp4.AvcCBox {
	first := sps[0]
	var profile, compat, level byte
	if len(first) >= 4 {
		profile, compat, level = first[1], first[2], first[3]
	}
	return &mp4.AvcCBox{
		DecConfRec: avc.DecConfRec{
			AVCProfileIndication: profile,
			ProfileCompatibility: compat,
			AVCLevelIndication:   level,
			SPSnalus:             sps,
			PPSnalus:             pps,
			NoTrailingInfo:       true,
		},
	}
}

// Start writes the file header.
func (m *Muxer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.init == nil {
		return ErrNoTrack
	}
	if m.started {
		return nil
	}

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41", "iso6"})
	if err := ftyp.Encode(m.w); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := m.init.Moov.Encode(m.w); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	if err := m.w.Flush(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	m.started = true
	return nil
}

// WriteSample appends one Annex B access unit. A key frame closes the
// current fragment.
func (m *Muxer) WriteSample(track int, data []byte, info ports.SampleInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	if track != 0 {
		return fmt.Errorf("mp4muxer: unknown track %d", track)
	}

	avcc := convertToAVCC(data)
	if len(avcc) == 0 {
		return nil
	}
	next := &pendingSample{
		data:     avcc,
		ptsUs:    info.PtsUs,
		keyframe: info.Flags&ports.FlagKeyFrame != 0,
	}

	if m.pending != nil {
		if next.ptsUs <= m.pending.ptsUs {
			return fmt.Errorf("mp4muxer: non-increasing pts %d after %d", next.ptsUs, m.pending.ptsUs)
		}
		if err := m.addPending(durationTicks(next.ptsUs - m.pending.ptsUs)); err != nil {
			return err
		}
	}
	if next.keyframe && m.frag != nil {
		if err := m.flushFragment(); err != nil {
			return err
		}
	}
	m.pending = next
	return nil
}

func (m *Muxer) addPending(dur uint32) error {
	if dur == 0 {
		dur = 1
	}
	if m.frag == nil {
		m.seq++
		frag, err := mp4.CreateFragment(m.seq, 1)
		if err != nil {
			return fmt.Errorf("create fragment: %w", err)
		}
		m.frag = frag
	}

	flags := mp4.NonSyncSampleFlags
	if m.pending.keyframe {
		flags = mp4.SyncSampleFlags
	}
	m.frag.AddFullSample(mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Size:  uint32(len(m.pending.data)),
			Dur:   dur,
		},
		DecodeTime: toTicks(m.pending.ptsUs),
		Data:       m.pending.data,
	})
	m.pending = nil
	m.samples++
	return nil
}

func (m *Muxer) flushFragment() error {
	if m.frag == nil {
		return nil
	}
	if err := m.frag.Encode(m.w); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	m.frag = nil
	if err := m.w.Flush(); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}

// Stop writes the remaining samples and syncs the file.
func (m *Muxer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if !m.started {
		return ErrNotStarted
	}

	if m.pending != nil {
		if err := m.addPending(uint32(Timescale / m.frameRate)); err != nil {
			return err
		}
	}
	if err := m.flushFragment(); err != nil {
		return err
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", m.path, err)
	}
	return nil
}

// Release closes the file. Calling it twice is a no-op.
func (m *Muxer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return
	}
	m.released = true
	m.closed = true
	m.w.Flush()
	m.file.Close()
}

// Samples returns the number of samples written into fragments.
func (m *Muxer) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}

// toTicks converts microseconds to the 90 kHz media timescale.
func toTicks(us int64) uint64 {
	return uint64(us * Timescale / 1_000_000)
}

// durationTicks is toTicks for sample durations, which are 32-bit in trun.
func durationTicks(us int64) uint32 {
	return uint32(min(toTicks(us), math.MaxUint32))
}

// convertToAVCC converts Annex B format to AVCC format (length-prefixed).
// Parameter sets and access unit delimiters are dropped; they live in the
// avcC box.
func convertToAVCC(data []byte) []byte {
	nalus := avc.ExtractNalusFromByteStream(data)
	if len(nalus) == 0 {
		return nil
	}

	totalSize := 0
	for _, nalu := range nalus {
		totalSize += 4 + len(nalu)
	}

	result := make([]byte, totalSize)
	offset := 0
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_SPS, avc.NALU_PPS, avc.NALU_AUD:
			continue
		}

		length := len(nalu)
		result[offset] = byte(length >> 24)
		result[offset+1] = byte(length >> 16)
		result[offset+2] = byte(length >> 8)
		result[offset+3] = byte(length)
		offset += 4

		copy(result[offset:], nalu)
		offset += length
	}

	return result[:offset]
}

var _ ports.Muxer = (*Muxer)(nil)

// Factory creates muxers for output paths.
type Factory struct {
	FrameRate int
}

// Create opens a muxer writing to path.
func (f Factory) Create(path string) (ports.Muxer, error) {
	return New(path, f.FrameRate)
}

var _ ports.MuxerFactory = Factory{}
