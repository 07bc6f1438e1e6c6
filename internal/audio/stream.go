// Package audio turns a float32 sample source into a PCM byte stream and
// plays it through an output sink.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// SampleSource fills dst with interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// Format is the PCM encoding of the byte stream.
type Format int

const (
	// FormatF32 is 32-bit float little-endian.
	FormatF32 Format = iota
	// FormatPCM16 is signed 16-bit little-endian.
	FormatPCM16
)

func (f Format) String() string {
	switch f {
	case FormatF32:
		return "f32le"
	case FormatPCM16:
		return "s16le"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat accepts the names returned by Format.String.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "f32le", "f32", "float":
		return FormatF32, nil
	case "s16le", "s16", "pcm16":
		return FormatPCM16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// SampleBytes is the size of one encoded sample.
func (f Format) SampleBytes() int {
	if f == FormatPCM16 {
		return 2
	}
	return 4
}

// FrameBytes is the size of one encoded stereo frame.
func (f Format) FrameBytes() int { return 2 * f.SampleBytes() }

// StreamReader is the pull side of the output: each Read renders whole frames
// from the source and encodes them.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	format Format
	buf    []float32
}

func NewStreamReader(source SampleSource, format Format) *StreamReader {
	return &StreamReader{source: source, format: format}
}

func (r *StreamReader) Format() Format { return r.format }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fb := r.format.FrameBytes()
	frames := len(p) / fb
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	switch r.format {
	case FormatPCM16:
		for i, s := range r.buf {
			binary.LittleEndian.PutUint16(p[i*2:], uint16(toInt16(s)))
		}
	default:
		for i, s := range r.buf {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
		}
	}
	n := frames * fb
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

func toInt16(s float32) int16 {
	if s >= 1 {
		return math.MaxInt16
	}
	if s <= -1 {
		return -math.MaxInt16
	}
	return int16(s * math.MaxInt16)
}
