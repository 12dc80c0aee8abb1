// Package h264decoder reads H.264 samples back out of MP4 recordings and
// decodes individual frames with ffmpeg.
package h264decoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

var (
	// ErrNoVideoTrack is returned when the file has no H.264 video track.
	ErrNoVideoTrack = errors.New("h264decoder: no video track")

	// ErrFrameOutOfRange is returned for a frame index past the last sample.
	ErrFrameOutOfRange = errors.New("h264decoder: frame out of range")

	// ErrNoKeyFrame is returned when no sync sample precedes the frame.
	ErrNoKeyFrame = errors.New("h264decoder: no key frame before frame")

	// ErrDecodeFailed is returned when ffmpeg produced no image.
	ErrDecodeFailed = errors.New("h264decoder: decode failed")
)

// Sample is one access unit in Annex B form. Sync samples carry the
// parameter sets in front so decoding can start there.
type Sample struct {
	Data       []byte
	DecodeTime time.Duration
	Duration   time.Duration
	Sync       bool
}

// track holds what both MP4 layouts need to rebuild Annex B samples.
type track struct {
	id        uint32
	timescale uint32
	spsPPS    []byte
}

// ReadFile reads every video sample of the MP4 file at path.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return ReadSamples(f)
}

// ReadSamples reads every video sample of a fragmented or progressive MP4.
func ReadSamples(reader io.ReadSeeker) ([]Sample, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	if mp4File.IsFragmented() {
		if mp4File.Init == nil {
			return nil, ErrNoVideoTrack
		}
		return readFragmented(mp4File)
	}
	return readProgressive(mp4File, reader)
}

func findTrack(moov *mp4.MoovBox) (*mp4.TrakBox, track, error) {
	if moov == nil {
		return nil, track{}, ErrNoVideoTrack
	}
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		t := track{id: trak.Tkhd.TrackID, timescale: 1000}
		if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
			t.timescale = trak.Mdia.Mdhd.Timescale
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			avc1, ok := child.(*mp4.VisualSampleEntryBox)
			if !ok || avc1.AvcC == nil {
				continue
			}
			for _, sps := range avc1.AvcC.SPSnalus {
				t.spsPPS = append(t.spsPPS, 0, 0, 0, 1)
				t.spsPPS = append(t.spsPPS, sps...)
			}
			for _, pps := range avc1.AvcC.PPSnalus {
				t.spsPPS = append(t.spsPPS, 0, 0, 0, 1)
				t.spsPPS = append(t.spsPPS, pps...)
			}
			return trak, t, nil
		}
	}
	return nil, track{}, ErrNoVideoTrack
}

func (t track) sample(avcc []byte, decodeTime uint64, dur uint32, sync bool) Sample {
	data := avccToAnnexB(avcc)
	if sync {
		data = append(append([]byte{}, t.spsPPS...), data...)
	}
	return Sample{
		Data:       data,
		DecodeTime: t.duration(decodeTime),
		Duration:   t.duration(uint64(dur)),
		Sync:       sync,
	}
}

func (t track) duration(ticks uint64) time.Duration {
	return time.Duration(ticks) * time.Second / time.Duration(t.timescale)
}

func readFragmented(mp4File *mp4.File) ([]Sample, error) {
	_, t, err := findTrack(mp4File.Init.Moov)
	if err != nil {
		return nil, err
	}

	var trex *mp4.TrexBox
	if mvex := mp4File.Init.Moov.Mvex; mvex != nil {
		for _, tr := range mvex.Trexs {
			if tr.TrackID == t.id {
				trex = tr
				break
			}
		}
	}

	var samples []Sample
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != t.id {
					continue
				}
				var decodeTime uint64
				if traf.Tfdt != nil {
					decodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				full, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("get samples: %w", err)
				}
				for _, s := range full {
					samples = append(samples, t.sample(s.Data, decodeTime, s.Dur, s.Flags == mp4.SyncSampleFlags))
					decodeTime += uint64(s.Dur)
				}
			}
		}
	}
	return samples, nil
}

func readProgressive(mp4File *mp4.File, reader io.ReadSeeker) ([]Sample, error) {
	trak, t, err := findTrack(mp4File.Moov)
	if err != nil {
		return nil, err
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil {
		return nil, fmt.Errorf("no stsz box found")
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	samples := make([]Sample, 0, stbl.Stsz.SampleNumber)
	for nr := uint32(1); nr <= stbl.Stsz.SampleNumber; nr++ {
		data, err := sampleData(stbl, reader, nr)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", nr, err)
		}
		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(nr)
		}
		sync := stbl.Stss == nil || syncSamples[nr]
		samples = append(samples, t.sample(data, decodeTime, dur, sync))
	}
	return samples, nil
}

func sampleData(stbl *mp4.StblBox, reader io.ReadSeeker, nr uint32) ([]byte, error) {
	if stbl.Stsc == nil {
		return nil, fmt.Errorf("missing stsc box")
	}

	chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return nil, fmt.Errorf("get chunk nr: %w", err)
	}

	var offset uint64
	switch {
	case stbl.Stco != nil:
		offset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return nil, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return nil, fmt.Errorf("chunk nr out of range")
		}
		offset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return nil, fmt.Errorf("no stco or co64 box")
	}

	for s := uint32(firstInChunk); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}

	if _, err := reader.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, stbl.Stsz.GetSampleSize(int(nr)))
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return data, nil
}

// avccToAnnexB converts length-prefixed NAL units to start code form.
func avccToAnnexB(data []byte) []byte {
	var out []byte
	for offset := 0; offset+4 <= len(data); {
		n := int(data[offset])<<24 | int(data[offset+1])<<16 | int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if n < 0 || offset+n > len(data) {
			break
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, data[offset:offset+n]...)
		offset += n
	}
	return out
}
