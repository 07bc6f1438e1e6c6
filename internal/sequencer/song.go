package sequencer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrUnsupportedTimeFormat is returned for SMPTE-timed files.
var ErrUnsupportedTimeFormat = errors.New("sequencer: unsupported time format")

// defaultBPM applies until the first tempo event.
const defaultBPM = 120

// Event is a playable message at a frame offset from the start of the song.
type Event struct {
	Frame   int64
	Track   int
	Message midi.Message
}

// Song is a MIDI file flattened to frame positions at one sample rate.
// Tempo events from every track form a shared tempo map.
type Song struct {
	Events     []Event
	Frames     int64
	SampleRate int
}

// Duration is the song length including trailing rests.
func (s *Song) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frames) / float64(s.SampleRate) * float64(time.Second))
}

// ReadFile loads a standard MIDI file from disk.
func ReadFile(path string, sampleRate int) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	song, err := Read(f, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return song, nil
}

// Read parses a standard MIDI file.
func Read(r io.Reader, sampleRate int) (*Song, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	return FromSMF(s, sampleRate)
}

type timed struct {
	tick  int64
	track int
	msg   smf.Message
}

// FromSMF converts tick positions to frames. Events on the same tick keep
// their track order.
func FromSMF(s *smf.SMF, sampleRate int) (*Song, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTimeFormat, s.TimeFormat)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sequencer: sample rate %d", sampleRate)
	}
	var all []timed
	for i, tr := range s.Tracks {
		var tick int64
		for _, ev := range tr {
			tick += int64(ev.Delta)
			all = append(all, timed{tick: tick, track: i, msg: ev.Message})
		}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].tick < all[b].tick })

	song := &Song{SampleRate: sampleRate}
	perTick := framesPerTick(defaultBPM, mt.Resolution(), sampleRate)
	var (
		lastTick int64
		frame    float64
	)
	for _, e := range all {
		frame += float64(e.tick-lastTick) * perTick
		lastTick = e.tick
		var bpm float64
		if e.msg.GetMetaTempo(&bpm) {
			if bpm > 0 {
				perTick = framesPerTick(bpm, mt.Resolution(), sampleRate)
			}
			continue
		}
		if !playable(e.msg) {
			continue
		}
		song.Events = append(song.Events, Event{
			Frame:   int64(frame),
			Track:   e.track,
			Message: midi.Message(e.msg),
		})
	}
	song.Frames = int64(frame)
	return song, nil
}

func framesPerTick(bpm float64, resolution uint16, sampleRate int) float64 {
	return 60 * float64(sampleRate) / (bpm * float64(resolution))
}

// playable keeps channel voice messages and system exclusive.
func playable(msg smf.Message) bool {
	if len(msg) == 0 {
		return false
	}
	return msg[0]&0x80 != 0 && (msg[0] < 0xF0 || msg[0] == 0xF0)
}
