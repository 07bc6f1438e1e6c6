package softsynth

import (
	"fmt"
	"io"

	intbank "github.com/cbegin/softsynth-go/internal/bank"
	intseq "github.com/cbegin/softsynth-go/internal/sequencer"
)

// renderChunk is the block size used when rendering offline.
const renderChunk = 1024

// Render plays song through the synthesizer and returns interleaved stereo
// frames. It stops when the song and its release tail end, or after
// maxSeconds. The synthesizer must not be streaming to a sink.
func (s *Synthesizer) Render(song *intseq.Song, maxSeconds float64) ([]float32, error) {
	s.life.Lock()
	streaming := s.sink != nil
	s.life.Unlock()
	if streaming {
		return nil, fmt.Errorf("render: %w", ErrAlreadyOpen)
	}
	if song.SampleRate != s.cfg.SampleRate {
		return nil, fmt.Errorf("render: song at %d Hz on a %d Hz synthesizer: %w", song.SampleRate, s.cfg.SampleRate, ErrInvalidConfig)
	}
	seq := intseq.NewWithOptions(song, engine{s}, intseq.Options{ReleaseTailFrames: s.cfg.SampleRate / 10})
	limit := max(int(maxSeconds*float64(s.cfg.SampleRate)), 0)
	out := make([]float32, 0, 2*min(limit, int(song.Frames)+s.cfg.SampleRate))
	chunk := make([]float32, 2*renderChunk)
	for len(out)/2 < limit && !seq.Finished() {
		n := min(renderChunk, limit-len(out)/2)
		seq.Process(chunk[:2*n])
		out = append(out, chunk[:2*n]...)
	}
	s.log.Debug("song rendered", "frames", len(out)/2, "finished", seq.Finished())
	return out, nil
}

// RenderFile renders a standard MIDI file.
func (s *Synthesizer) RenderFile(path string, maxSeconds float64) ([]float32, error) {
	song, err := intseq.ReadFile(path, s.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return s.Render(song, maxSeconds)
}

// WriteWAV encodes interleaved stereo frames at the synthesizer's sample
// rate as 16-bit PCM.
func (s *Synthesizer) WriteWAV(w io.Writer, frames []float32) error {
	return intbank.WriteWAV(w, frames, s.cfg.SampleRate)
}
