package bank

import (
	"errors"
	"fmt"
	"io"

	wav "github.com/youpy/go-wav"

	"github.com/cbegin/softsynth-go/internal/model"
)

// RIFFReader is what the WAV decoder reads from; *os.File and *bytes.Reader qualify.
type RIFFReader interface {
	io.Reader
	io.ReaderAt
}

// LoadWAV decodes a PCM WAV file into a mono wavetable. Multi-channel files
// are averaged down to one channel.
func LoadWAV(r RIFFReader) (*model.Wavetable, error) {
	wr := wav.NewReader(r)
	f, err := wr.Format()
	if err != nil {
		return nil, fmt.Errorf("wav format: %w", err)
	}
	if f.NumChannels == 0 || f.SampleRate == 0 {
		return nil, fmt.Errorf("wav format: %d channels at %d Hz: %w", f.NumChannels, f.SampleRate, ErrMalformed)
	}
	var data []float32
	for {
		samples, err := wr.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wav data: %w", err)
		}
		for _, s := range samples {
			var sum float64
			for ch := uint(0); ch < uint(f.NumChannels); ch++ {
				sum += wr.FloatValue(s, ch)
			}
			data = append(data, float32(sum/float64(f.NumChannels)))
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("wav data: no samples: %w", ErrMalformed)
	}
	return model.NewWavetable(data, float64(f.SampleRate)), nil
}

// WriteWAV encodes interleaved stereo float frames as 16-bit PCM.
func WriteWAV(w io.Writer, frames []float32, sampleRate int) error {
	n := len(frames) / 2
	out := make([]wav.Sample, n)
	for i := range out {
		out[i].Values[0] = pcm16(frames[2*i])
		out[i].Values[1] = pcm16(frames[2*i+1])
	}
	ww := wav.NewWriter(w, uint32(n), 2, uint32(sampleRate), 16)
	if err := ww.WriteSamples(out); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	return nil
}

func pcm16(s float32) int {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32767
	}
	return int(s * 32767)
}
