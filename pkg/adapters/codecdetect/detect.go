// Package codecdetect inspects MP4 recordings: codec, track layout and
// sample counts.
package codecdetect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Codec represents a video codec type.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecUnknown Codec = "unknown"
)

// Report summarizes an MP4 file.
type Report struct {
	Codec       Codec
	VideoTracks int
	Width       int
	Height      int
	Fragmented  bool
	Fragments   int
	Samples     int
	Duration    time.Duration
}

// DetectFromFile detects the video codec used in an MP4 file.
func DetectFromFile(path string) (Codec, error) {
	r, err := InspectFile(path)
	if err != nil {
		return CodecUnknown, err
	}
	return r.Codec, nil
}

// DetectFromBytes detects the video codec from MP4 data bytes.
func DetectFromBytes(data []byte) (Codec, error) {
	r, err := Inspect(bytes.NewReader(data))
	if err != nil {
		return CodecUnknown, err
	}
	return r.Codec, nil
}

// InspectFile reports on the MP4 file at path.
func InspectFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Inspect(f)
}

// Inspect reports on an MP4 stream.
func Inspect(reader io.ReadSeeker) (Report, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return Report{}, fmt.Errorf("decode mp4: %w", err)
	}

	// Reset reader position for subsequent reads
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return Report{}, fmt.Errorf("seek: %w", err)
	}

	return inspectMP4File(mp4File)
}

func inspectMP4File(mp4File *mp4.File) (Report, error) {
	report := Report{Codec: CodecUnknown}

	var moov *mp4.MoovBox
	if mp4File.IsFragmented() && mp4File.Init != nil {
		report.Fragmented = true
		moov = mp4File.Init.Moov
	} else {
		moov = mp4File.Moov
	}
	if moov == nil {
		return report, fmt.Errorf("no moov box found")
	}

	var timescale uint32
	for _, trak := range moov.Traks {
		codec, ok := videoCodec(trak)
		if !ok {
			continue
		}
		report.VideoTracks++
		if report.VideoTracks == 1 {
			report.Codec = codec
			report.Width = int(trak.Tkhd.Width >> 16)
			report.Height = int(trak.Tkhd.Height >> 16)
			timescale = trak.Mdia.Mdhd.Timescale
		}
	}
	if report.VideoTracks == 0 {
		return report, fmt.Errorf("no video track found")
	}

	var ticks uint64
	if report.Fragmented {
		for _, seg := range mp4File.Segments {
			for _, frag := range seg.Fragments {
				report.Fragments++
				for _, traf := range frag.Moof.Trafs {
					for _, trun := range traf.Truns {
						report.Samples += int(trun.SampleCount())
						for _, s := range trun.Samples {
							ticks += uint64(s.Dur)
						}
					}
				}
			}
		}
	} else {
		if trak := moov.Trak; trak != nil {
			if trak.Mdia.Minf.Stbl.Stsz != nil {
				report.Samples = int(trak.Mdia.Minf.Stbl.Stsz.SampleNumber)
			}
			ticks = trak.Mdia.Mdhd.Duration
		}
	}
	if timescale > 0 {
		report.Duration = time.Duration(ticks) * time.Second / time.Duration(timescale)
	}

	return report, nil
}

func videoCodec(trak *mp4.TrakBox) (Codec, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return CodecUnknown, false
	}

	// Only process video tracks
	if trak.Mdia.Hdlr.HandlerType != "vide" {
		return CodecUnknown, false
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return CodecUnknown, true
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			return CodecH264, true
		case "hvc1", "hev1":
			return CodecHEVC, true
		case "av01":
			return CodecAV1, true
		}
	}
	return CodecUnknown, true
}
