package softsynth

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	intbank "github.com/cbegin/softsynth-go/internal/bank"
	intseq "github.com/cbegin/softsynth-go/internal/sequencer"
)

func shortPhrase(sampleRate int) *intseq.Song {
	song := &intseq.Song{SampleRate: sampleRate}
	step := int64(sampleRate / 8)
	for i, key := range []uint8{60, 62, 64, 65, 67} {
		at := int64(i) * step
		song.Events = append(song.Events,
			intseq.Event{Frame: at, Message: midi.NoteOn(0, key, 100)},
			intseq.Event{Frame: at + step - 1, Message: midi.NoteOff(0, key)},
		)
	}
	song.Events = append(song.Events,
		intseq.Event{Frame: 0, Message: midi.NoteOn(9, 36, 110)},
		intseq.Event{Frame: 2 * step, Message: midi.NoteOff(9, 36)},
	)
	slices.SortStableFunc(song.Events, func(a, b intseq.Event) int { return int(a.Frame - b.Frame) })
	song.Frames = 5 * step
	return song
}

func newRenderSynth(t *testing.T) *Synthesizer {
	t.Helper()
	s, err := New(WithSink(SinkNone))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.LoadBank(intbank.Default()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRenderSong(t *testing.T) {
	song := shortPhrase(44100)
	out, err := newRenderSynth(t).Render(song, 10)
	if err != nil {
		t.Fatal(err)
	}
	frames := len(out) / 2
	if frames < int(song.Frames) || frames >= 10*44100 {
		t.Fatalf("rendered %d frames for a %d frame song", frames, song.Frames)
	}
	if energy(out) == 0 {
		t.Fatal("expected non-zero audio energy")
	}
}

func TestRenderDeterministic(t *testing.T) {
	song := shortPhrase(44100)
	a, err := newRenderSynth(t).Render(song, 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newRenderSynth(t).Render(song, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a, b) {
		t.Fatal("two renders of the same song differ")
	}
}

func TestRenderLimit(t *testing.T) {
	out, err := newRenderSynth(t).Render(shortPhrase(44100), 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2*4410 {
		t.Fatalf("rendered %d samples, want %d", len(out), 2*4410)
	}
}

func TestRenderErrors(t *testing.T) {
	s := newRenderSynth(t)
	if _, err := s.Render(shortPhrase(48000), 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("sample rate mismatch = %v", err)
	}

	streaming, err := New(WithWriter(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if err := streaming.Open(); err != nil {
		t.Fatal(err)
	}
	defer streaming.Close()
	if _, err := streaming.Render(shortPhrase(44100), 1); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("render while streaming = %v", err)
	}
}

func TestWriteWAV(t *testing.T) {
	s := newRenderSynth(t)
	out, err := s.Render(shortPhrase(44100), 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.WriteWAV(&buf, out); err != nil {
		t.Fatal(err)
	}
	w, err := intbank.LoadWAV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if w.Len() != len(out)/2 || w.SampleRate != 44100 {
		t.Fatalf("decoded %d frames at %f Hz", w.Len(), w.SampleRate)
	}
}

func TestPlaySong(t *testing.T) {
	s := newTestSynth(t)
	song := shortPhrase(44100)
	var ended bool
	seq, err := s.Play(song, intseq.Options{OnEvent: func(k intseq.EventKind) {
		ended = ended || k == intseq.EventPlaybackEnded
	}})
	if err != nil {
		t.Fatal(err)
	}
	var e float64
	for i := 0; i < 400 && !seq.Finished(); i++ {
		e += energy(pull(s, 0.01))
	}
	if !seq.Finished() || !ended {
		t.Fatal("playback should finish")
	}
	if e == 0 {
		t.Fatal("expected non-zero audio energy")
	}
	if s.ActiveVoices() != 0 {
		t.Fatalf("%d voices left after the song", s.ActiveVoices())
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Play(song, intseq.Options{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("play on a closed synthesizer = %v", err)
	}
}
