package model

import "io"

// LoopType selects how a wavetable loops. Values combine as a bit set.
type LoopType int

const (
	LoopOff      LoopType = 0
	LoopForward  LoopType = 1
	LoopRelease  LoopType = 2 // loops until note-off, then plays the tail once
	LoopPingPong LoopType = 4
	LoopReverse  LoopType = 8
)

// Wavetable is an immutable mono PCM region with loop metadata.
// Sub-ranges share the backing array.
type Wavetable struct {
	SampleRate float64
	// LoopStart and LoopLength are in samples, relative to the start of this view.
	LoopStart  float64
	LoopLength float64
	LoopType   LoopType
	// PitchCorrection in cents is added to the requested pitch. A sample recorded
	// at root key K with fine tune F has correction -K*100 + F.
	PitchCorrection float64
	// Attenuation in centibels applied to every voice playing this wavetable.
	Attenuation float64

	data []float32
}

// NewWavetable wraps samples without copying them.
func NewWavetable(samples []float32, sampleRate float64) *Wavetable {
	return &Wavetable{SampleRate: sampleRate, data: samples}
}

// SetRootKey sets the pitch correction so that the sample plays unshifted at key.
func (w *Wavetable) SetRootKey(key int, fineCents float64) {
	w.PitchCorrection = -float64(key)*100 + fineCents
}

// Samples returns the shared sample view. Callers must not modify it.
func (w *Wavetable) Samples() []float32 { return w.data }

// Len returns the number of samples in the view.
func (w *Wavetable) Len() int { return len(w.data) }

// Slice returns a view of samples [from, to) sharing the same storage.
// Loop metadata is shifted so it stays anchored to the same samples and is
// clipped to the view.
func (w *Wavetable) Slice(from, to int) *Wavetable {
	if from < 0 {
		from = 0
	}
	if to > len(w.data) {
		to = len(w.data)
	}
	if to < from {
		to = from
	}
	cp := *w
	cp.data = w.data[from:to:to]
	// The loop keeps only the part of it that falls inside the view.
	n := float64(to - from)
	end := min(max(w.LoopStart+w.LoopLength-float64(from), 0), n)
	cp.LoopStart = min(max(w.LoopStart-float64(from), 0), n)
	cp.LoopLength = max(end-cp.LoopStart, 0)
	return &cp
}

// Open returns a fresh sequential reader over the wavetable.
func (w *Wavetable) Open() *SampleStream {
	return &SampleStream{data: w.data, mark: -1}
}

// SampleStream reads a wavetable sequentially and supports a single mark point.
type SampleStream struct {
	data []float32
	pos  int
	mark int
}

// Read copies up to len(p) samples. It returns io.EOF once no samples remain.
func (s *SampleStream) Read(p []float32) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

// Skip advances the read position by n samples.
func (s *SampleStream) Skip(n int) {
	s.pos += n
	if s.pos > len(s.data) {
		s.pos = len(s.data)
	}
}

// Mark remembers the current position for Reset.
func (s *SampleStream) Mark() { s.mark = s.pos }

// Reset rewinds to the marked position, or to the start if no mark was set.
func (s *SampleStream) Reset() {
	if s.mark < 0 {
		s.pos = 0
		return
	}
	s.pos = s.mark
}

// Pos returns the current read position in samples.
func (s *SampleStream) Pos() int { return s.pos }
