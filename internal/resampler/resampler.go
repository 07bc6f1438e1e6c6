// Package resampler streams a wavetable at a variable playback pitch using
// linear interpolation over fixed-size sectors.
package resampler

import (
	"io"
	"math"

	"github.com/cbegin/softsynth-go/internal/model"
)

const (
	// SectorSize is the number of source samples buffered at a time.
	SectorSize = 400
	// Padding is the number of guard samples kept on each side of a sector.
	Padding = 2

	span = SectorSize + 2*Padding
	q15  = 1 << 15
)

// Stream is a per-voice resampler over one wavetable.
//
// ix is the fractional read cursor inside buf; buf[2*Padding+k] holds source
// sample streamPos+k while the buffer is in forward order. Backward playback
// (ping-pong and reverse loops) flips the buffer in place and mirrors ix.
type Stream struct {
	src       *model.SampleStream
	streamEOF bool
	eof       bool

	loopMode  model.LoopType
	forward   bool
	loopStart float64
	loopLen   float64

	rateRatio       float64
	pitchCorrection float64
	targetPitch     float64
	pitch           float64
	started         bool
	noteOff         bool

	buf             []float32
	ordered         bool
	ix              float64
	sectorPos       int
	sectorLoopStart int
	streamPos       int
	markSet         bool
}

// Open binds the stream to w, rendering for an output running at outputRate.
func (s *Stream) Open(w *model.Wavetable, outputRate float64) {
	s.src = w.Open()
	s.eof = false
	s.streamEOF = false
	s.pitchCorrection = w.PitchCorrection
	s.rateRatio = w.SampleRate / outputRate
	s.loopLen = w.LoopLength
	s.loopStart = w.LoopStart
	s.loopMode = w.LoopType
	if s.loopLen <= 0 {
		s.loopMode = model.LoopOff
	}
	s.sectorLoopStart = int(s.loopStart/SectorSize) - 1
	if s.sectorLoopStart < 0 {
		s.sectorLoopStart = 0
	}
	// Without a loop there is nothing to rewind to, so the mark is implicitly the start.
	s.markSet = s.loopMode == model.LoopOff
	s.started = false
	s.targetPitch = s.rateRatio
	s.pitch = s.rateRatio
	s.ordered = true
	s.forward = true
	s.noteOff = false

	if len(s.buf) != span {
		s.buf = make([]float32, span)
	} else {
		clear(s.buf)
	}
	s.ix = SectorSize + Padding
	s.sectorPos = -1
	s.streamPos = -SectorSize
	s.nextBuffer()
}

// SetPitch sets the target playback pitch in cents relative to the wavetable's
// root. Before the first Read the pitch applies immediately; afterwards the
// next Read ramps linearly from the previous pitch to the new one.
func (s *Stream) SetPitch(cents float64) {
	s.targetPitch = math.Exp((s.pitchCorrection+cents)*(math.Ln2/1200)) * s.rateRatio
	if !s.started {
		s.pitch = s.targetPitch
	}
}

// NoteOff ends release-mode looping once the cursor is moving forward.
func (s *Stream) NoteOff() { s.noteOff = true }

// EOF reports whether the stream has played to its end.
func (s *Stream) EOF() bool { return s.eof }

func (s *Stream) nextBuffer() {
	if s.ix < Padding && s.markSet {
		// Rewind to the marked sector one behind the loop start, then step back
		// one more so the refill below lands on it.
		s.src.Reset()
		s.ix += float64(s.streamPos - s.sectorLoopStart*SectorSize)
		s.sectorPos = s.sectorLoopStart
		s.streamPos = s.sectorPos * SectorSize

		s.ix += SectorSize
		s.sectorPos--
		s.streamPos -= SectorSize
		s.streamEOF = false
	}

	if s.ix >= SectorSize+Padding && s.streamEOF {
		s.eof = true
		return
	}

	if s.ix >= SectorSize*4+Padding {
		skips := int((s.ix - SectorSize*4 + Padding) / SectorSize)
		s.ix -= float64(SectorSize * skips)
		s.sectorPos += skips
		s.streamPos += SectorSize * skips
		s.src.Skip(SectorSize * skips)
	}

	for s.ix >= SectorSize+Padding {
		if !s.markSet && s.sectorPos+1 == s.sectorLoopStart {
			s.src.Mark()
			s.markSet = true
		}
		s.ix -= SectorSize
		s.sectorPos++
		s.streamPos += SectorSize

		copy(s.buf[:2*Padding], s.buf[SectorSize:])
		n, err := s.src.Read(s.buf[2*Padding:])
		if err == io.EOF {
			s.streamEOF = true
			clear(s.buf[2*Padding:])
			return
		}
		if n != SectorSize {
			clear(s.buf[2*Padding+n:])
		}
		s.ordered = true
	}
}

func (s *Stream) reverse() {
	s.ordered = !s.ordered
	b := s.buf
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Read fills out with resampled audio. It returns the number of samples written
// and io.EOF once the wavetable has played to its end (not looping).
func (s *Stream) Read(out []float32) (int, error) {
	if s.eof {
		return 0, io.EOF
	}
	if s.noteOff && s.loopMode&model.LoopRelease != 0 && s.forward {
		s.loopMode = model.LoopOff
	}

	n := len(out)
	pitchStep := (s.targetPitch - s.pitch) / float64(n)
	s.started = true

	ox := 0
	ixEnd := float64(SectorSize + Padding)
	if !s.forward {
		ixEnd = Padding
	}
	for ox != n {
		s.nextBuffer()
		if !s.forward {
			if float64(s.streamPos) < s.loopStart+Padding {
				ixEnd = s.loopStart - float64(s.streamPos) + 2*Padding
				if s.ix <= ixEnd {
					if s.loopMode&model.LoopPingPong != 0 {
						s.forward = true
						ixEnd = SectorSize + Padding
						continue
					}
					s.ix += s.loopLen
					ixEnd = Padding
					continue
				}
			}
			if s.ordered {
				s.reverse()
			}
			s.ix = span - s.ix
			ixEnd = span - ixEnd + 1
			s.interpolate(out, &ox, ixEnd, pitchStep)
			s.ix = span - s.ix
			ixEnd = span - (ixEnd - 1)
			if s.eof {
				s.pitch = s.targetPitch
				return ox, io.EOF
			}
			continue
		}

		if s.loopMode != model.LoopOff {
			if float64(s.streamPos+SectorSize) > s.loopLen+s.loopStart+Padding {
				ixEnd = s.loopStart + s.loopLen - float64(s.streamPos) + 2*Padding
				if s.ix >= ixEnd {
					if s.loopMode&(model.LoopPingPong|model.LoopReverse) != 0 {
						s.forward = false
						ixEnd = Padding
						continue
					}
					ixEnd = SectorSize + Padding
					s.ix -= s.loopLen
					continue
				}
			}
		}

		if !s.ordered {
			s.reverse()
		}
		s.interpolate(out, &ox, ixEnd, pitchStep)
		if s.eof {
			s.pitch = s.targetPitch
			return ox, io.EOF
		}
	}
	s.pitch = s.targetPitch
	return n, nil
}

// interpolate reads from buf starting at s.ix until inEnd or the end of out.
// The integer sample index comes from a Q15 accumulator and the fraction from
// the float cursor; pitch is quantised to Q15 first so the two never drift apart.
func (s *Stream) interpolate(out []float32, ox *int, inEnd, pitchStep float64) {
	pitch := s.pitch
	ix := s.ix
	o := *ox
	oEnd := len(out)
	if !(ix < inEnd && o < oEnd) {
		return
	}

	in := s.buf
	pIx := int(ix * q15)
	pIxEnd := int(inEnd * q15)
	pPitch := int(pitch * q15)
	if pPitch < 1 {
		pPitch = 1
	}
	pitch = float64(pPitch) / q15

	if pitchStep == 0 {
		// Precompute how many outputs fit before inEnd so the loop only checks o.
		pLen := pIxEnd - pIx
		if m := pLen % pPitch; m != 0 {
			pLen += pPitch - m
		}
		if e := o + pLen/pPitch; e < oEnd {
			oEnd = e
		}
		for o < oEnd {
			iix := pIx >> 15
			fix := float32(ix - float64(iix))
			i := in[iix]
			out[o] = i + (in[iix+1]-i)*fix
			o++
			pIx += pPitch
			ix += pitch
		}
	} else {
		pStep := int(pitchStep * q15)
		pitchStep = float64(pStep) / q15
		for pIx < pIxEnd && o < oEnd {
			iix := pIx >> 15
			fix := float32(ix - float64(iix))
			i := in[iix]
			out[o] = i + (in[iix+1]-i)*fix
			o++
			ix += pitch
			pIx += pPitch
			pitch += pitchStep
			pPitch += pStep
			if pPitch < 1 {
				pPitch = 1
				pitch = 1.0 / q15
			}
		}
	}
	s.ix = ix
	*ox = o
	s.pitch = pitch
}
