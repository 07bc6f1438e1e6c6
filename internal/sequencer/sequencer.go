package sequencer

import (
	"slices"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Synth is the rendering side of playback. Schedule positions are on the
// same timeline SamplePosition reports.
type Synth interface {
	Schedule(at int64, msg midi.Message)
	SamplePosition() int64
	Process(dst []float32)
	ActiveVoices() int
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
)

func (k EventKind) String() string {
	switch k {
	case EventLoopCompleted:
		return "loop completed"
	case EventPlaybackEnded:
		return "playback ended"
	}
	return "unknown"
}

type Options struct {
	Loop              bool
	OnEvent           func(EventKind)
	ReleaseTailFrames int // extra frames to render after the last voice ends (0 = half a second)
	Transpose         int // semitones; the percussion channel is never transposed
	Lookahead         int // frames scheduled ahead of the audio position (0 = 1024)
}

const percussionChannel = 9

// Sequencer feeds a Song into a Synth and renders it. It is an audio
// SampleSource and reports Finished once the release tail has played.
type Sequencer struct {
	mu        sync.Mutex
	song      *Song
	synth     Synth
	opts      Options
	lookahead int64

	started    bool
	origin     int64
	played     int64
	next       int
	cycleStart int64
	loopMarks  []int64

	exhausted bool
	tailLeft  int
	ended     bool
}

func New(song *Song, synth Synth) *Sequencer {
	return NewWithOptions(song, synth, Options{})
}

func NewWithOptions(song *Song, synth Synth, opts Options) *Sequencer {
	tail := opts.ReleaseTailFrames
	if tail <= 0 {
		tail = song.SampleRate / 2
	}
	lookahead := opts.Lookahead
	if lookahead <= 0 {
		lookahead = 1024
	}
	return &Sequencer{
		song:      song,
		synth:     synth,
		opts:      opts,
		lookahead: int64(lookahead),
		tailLeft:  tail,
	}
}

// Process schedules the events due in and just after this buffer, then
// renders it.
func (s *Sequencer) Process(dst []float32) {
	n := int64(len(dst) / 2)
	s.mu.Lock()
	if !s.started {
		s.origin = s.synth.SamplePosition()
		s.started = true
	}
	if !s.ended {
		s.schedule(s.played + n + s.lookahead)
	}
	s.mu.Unlock()

	s.synth.Process(dst)

	s.mu.Lock()
	s.played += n
	fired := s.advance(int(n))
	s.mu.Unlock()
	if s.opts.OnEvent != nil {
		for _, k := range fired {
			s.opts.OnEvent(k)
		}
	}
}

func (s *Sequencer) schedule(until int64) {
	events := s.song.Events
	for {
		for s.next < len(events) && s.cycleStart+events[s.next].Frame < until {
			ev := events[s.next]
			s.next++
			if msg := s.transpose(ev.Message); msg != nil {
				s.synth.Schedule(s.origin+s.cycleStart+ev.Frame, msg)
			}
		}
		if s.next < len(events) || !s.opts.Loop || s.song.Frames <= 0 {
			return
		}
		if s.cycleStart+s.song.Frames >= until {
			return
		}
		s.cycleStart += s.song.Frames
		s.loopMarks = append(s.loopMarks, s.cycleStart)
		s.next = 0
	}
}

func (s *Sequencer) advance(n int) []EventKind {
	var fired []EventKind
	for len(s.loopMarks) > 0 && s.played >= s.loopMarks[0] {
		s.loopMarks = s.loopMarks[1:]
		fired = append(fired, EventLoopCompleted)
	}
	if s.ended || s.opts.Loop {
		return fired
	}
	if !s.exhausted && s.next >= len(s.song.Events) && s.played >= s.song.Frames {
		s.exhausted = true
	}
	if s.exhausted && s.synth.ActiveVoices() == 0 {
		s.tailLeft -= n
		if s.tailLeft <= 0 {
			s.ended = true
			fired = append(fired, EventPlaybackEnded)
		}
	}
	return fired
}

func (s *Sequencer) transpose(msg midi.Message) midi.Message {
	if s.opts.Transpose == 0 || len(msg) < 2 {
		return msg
	}
	switch msg[0] & 0xF0 {
	case 0x80, 0x90, 0xA0:
	default:
		return msg
	}
	if msg[0]&0x0F == percussionChannel {
		return msg
	}
	key := int(msg[1]) + s.opts.Transpose
	if key < 0 || key > 127 {
		return nil
	}
	out := slices.Clone(msg)
	out[1] = byte(key)
	return out
}

// Stop ends playback and silences every channel.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	at := s.synth.SamplePosition()
	for ch := uint8(0); ch < 16; ch++ {
		s.synth.Schedule(at, midi.ControlChange(ch, 120, 0))
	}
}

// Finished reports whether playback, including the release tail, is over.
func (s *Sequencer) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Position is the rendered time since playback began.
func (s *Sequencer) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(float64(s.played) / float64(s.song.SampleRate) * float64(time.Second))
}
