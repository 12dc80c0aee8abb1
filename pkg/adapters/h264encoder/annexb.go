package h264encoder

import (
	"bytes"

	"github.com/Eyevinn/mp4ff/avc"
)

var startCode = []byte{0, 0, 0, 1}

// accessUnit is one encoded picture with its leading parameter sets.
type accessUnit struct {
	nalus    [][]byte
	hasSlice bool
	keyframe bool
}

// annexB serializes the access unit with 4-byte start codes.
func (au *accessUnit) annexB() []byte {
	size := 0
	for _, n := range au.nalus {
		size += len(startCode) + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range au.nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

// parameterSets returns the SPS and PPS NAL units of the access unit.
func (au *accessUnit) parameterSets() (sps, pps [][]byte) {
	for _, n := range au.nalus {
		switch avc.GetNaluType(n[0]) {
		case avc.NALU_SPS:
			sps = append(sps, n)
		case avc.NALU_PPS:
			pps = append(pps, n)
		}
	}
	return sps, pps
}

// auSplitter cuts an Annex B byte stream arriving in arbitrary chunks into
// access units.
type auSplitter struct {
	buf     []byte
	current accessUnit
}

// feed appends data and returns the access units completed by it.
func (s *auSplitter) feed(data []byte) []accessUnit {
	s.buf = append(s.buf, data...)

	var out []accessUnit
	for {
		first := indexStartCode(s.buf, 0)
		if first < 0 {
			return out
		}
		begin := first + startCodeLen(s.buf, first)
		next := indexStartCode(s.buf, begin)
		if next < 0 {
			// Keep the partial NAL unit, dropping any garbage before it
			s.buf = s.buf[first:]
			return out
		}
		nalu := trimTrailingZeros(s.buf[begin:next])
		s.buf = s.buf[next:]
		if au, ok := s.push(nalu); ok {
			out = append(out, au)
		}
	}
}

// flush returns the final access unit at end of stream.
func (s *auSplitter) flush() []accessUnit {
	var out []accessUnit
	if first := indexStartCode(s.buf, 0); first >= 0 {
		nalu := trimTrailingZeros(s.buf[first+startCodeLen(s.buf, first):])
		if au, ok := s.push(nalu); ok {
			out = append(out, au)
		}
	}
	s.buf = nil
	if len(s.current.nalus) > 0 {
		out = append(out, s.current)
		s.current = accessUnit{}
	}
	return out
}

// push adds a NAL unit and returns the previous access unit when this NAL
// unit starts a new one.
func (s *auSplitter) push(nalu []byte) (accessUnit, bool) {
	if len(nalu) == 0 {
		return accessUnit{}, false
	}
	nalu = bytes.Clone(nalu)

	var done accessUnit
	emitted := false
	typ := avc.GetNaluType(nalu[0])

	switch typ {
	case avc.NALU_AUD, avc.NALU_SPS, avc.NALU_PPS, avc.NALU_SEI:
		if s.current.hasSlice {
			done, emitted = s.current, true
			s.current = accessUnit{}
		}
	case avc.NALU_NON_IDR, avc.NALU_IDR:
		// first_mb_in_slice == 0 is coded as a single 1 bit
		if s.current.hasSlice && len(nalu) > 1 && nalu[1]&0x80 != 0 {
			done, emitted = s.current, true
			s.current = accessUnit{}
		}
		s.current.hasSlice = true
		if typ == avc.NALU_IDR {
			s.current.keyframe = true
		}
	}
	s.current.nalus = append(s.current.nalus, nalu)
	return done, emitted
}

func indexStartCode(b []byte, from int) int {
	if from >= len(b) {
		return -1
	}
	i := bytes.Index(b[from:], []byte{0, 0, 1})
	if i < 0 {
		return -1
	}
	i += from
	if i > from && b[i-1] == 0 {
		return i - 1
	}
	return i
}

func startCodeLen(b []byte, at int) int {
	if at+3 < len(b) && b[at+2] == 0 {
		return 4
	}
	return 3
}

func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
