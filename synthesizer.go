// Package softsynth is a real-time software MIDI synthesizer: sample-based
// instruments driven by a DLS-style modulation graph, rendered at a fixed
// control rate into a pull-based stereo stream.
package softsynth

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/softsynth-go/internal/audio"
	intbank "github.com/cbegin/softsynth-go/internal/bank"
	"github.com/cbegin/softsynth-go/internal/channel"
	intfx "github.com/cbegin/softsynth-go/internal/effects"
	"github.com/cbegin/softsynth-go/internal/mixer"
	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/performer"
	intseq "github.com/cbegin/softsynth-go/internal/sequencer"
	"github.com/cbegin/softsynth-go/internal/voice"
)

const numChannels = 16

var (
	ErrNilInstrument  = errors.New("nil instrument")
	ErrClosed         = errors.New("synthesizer is closed")
	ErrAlreadyOpen    = errors.New("synthesizer is already open")
	ErrInvalidMessage = errors.New("invalid MIDI message")
	ErrSinkFailed     = errors.New("audio sink failed")
)

// GM2 bank MSBs that select percussion or melodic instruments on any channel.
const (
	bankPercussionMSB = 0x78
	bankMelodicMSB    = 0x79
)

// Synthesizer owns the voice pool, the 16 channels, the mixer and the
// instrument table. One mutex guards all control state and is shared with
// the channels and the mixer.
type Synthesizer struct {
	cfg    Config
	log    *slog.Logger
	format intaudio.Format

	mu          sync.Mutex
	master      *voice.Master
	pool        *voice.Pool
	channels    []*channel.Channel
	mixer       *mixer.Mixer
	instruments map[string]*performer.Instrument
	tunings     map[[2]int]*voice.Tuning
	// enabled mirrors opened under mu for the channels.
	enabled bool

	life   sync.Mutex
	opened atomic.Bool
	sink   intaudio.Sink
	seq    atomic.Pointer[intseq.Sequencer]

	failMu  sync.Mutex
	failErr error
	failed  chan struct{}
}

// New builds a synthesizer from DefaultConfig and opts. It produces no sound
// until Open.
func New(opts ...Option) (*Synthesizer, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := cfg.policy()
	format, _ := intaudio.ParseFormat(cfg.Format)
	inserts, err := intfx.Build(cfg.SampleRate, cfg.Inserts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Synthesizer{
		cfg:         cfg,
		log:         logger,
		format:      format,
		master:      voice.NewMaster(),
		pool:        voice.NewPool(cfg.Polyphony, policy, float64(cfg.SampleRate), cfg.ControlRate),
		instruments: map[string]*performer.Instrument{},
		tunings:     map[[2]int]*voice.Tuning{},
		failed:      make(chan struct{}),
	}
	h := (*host)(s)
	for i := 0; i < numChannels; i++ {
		s.channels = append(s.channels, channel.New(i, h, &s.mu, s.master, cfg.ControlRate))
	}
	s.mixer = mixer.New(mixer.Config{
		SampleRate:  float64(cfg.SampleRate),
		ControlRate: cfg.ControlRate,
		Reverb:      cfg.Reverb,
		Chorus:      cfg.Chorus,
		AGC:         cfg.AGC,
		Inserts:     inserts,
		Logger:      logger,
	}, &s.mu, h, s.pool, s.master)
	return s, nil
}

// Config returns the configuration the synthesizer was built with.
func (s *Synthesizer) Config() Config { return s.cfg }

// Open starts the output sink. With SinkNone the caller pulls audio through
// Process instead.
func (s *Synthesizer) Open() error {
	s.life.Lock()
	defer s.life.Unlock()
	if s.opened.Load() {
		return ErrAlreadyOpen
	}
	s.failMu.Lock()
	s.failErr = nil
	select {
	case <-s.failed:
		s.failed = make(chan struct{})
	default:
	}
	s.failMu.Unlock()
	reader := intaudio.NewStreamReader(output{s}, s.format)
	var (
		sink intaudio.Sink
		err  error
	)
	switch s.cfg.Sink {
	case SinkEbiten:
		sink, err = intaudio.NewEbitenSink(s.cfg.SampleRate, reader)
	case SinkOto:
		sink, err = intaudio.NewOtoSink(s.cfg.SampleRate, reader)
	case SinkWriter:
		ws := intaudio.NewWriterSink(s.cfg.Writer, reader, s.mixer.Frames(), s.cfg.SampleRate, s.log)
		ws.OnFail(s.sinkFailed)
		sink = ws
	}
	if err != nil {
		return fmt.Errorf("open %s sink: %w", s.cfg.Sink, err)
	}
	if sink != nil {
		if err := sink.Start(); err != nil {
			_ = sink.Close()
			return fmt.Errorf("start %s sink: %w", s.cfg.Sink, err)
		}
	}
	s.sink = sink
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.opened.Store(true)
	s.log.Info("synthesizer opened",
		"sample_rate", s.cfg.SampleRate,
		"polyphony", s.cfg.Polyphony,
		"sink", s.cfg.Sink,
		"format", s.format)
	return nil
}

// Close stops the sink, silences every channel and drops queued events.
func (s *Synthesizer) Close() error {
	s.life.Lock()
	defer s.life.Unlock()
	if !s.opened.Load() {
		return ErrClosed
	}
	s.opened.Store(false)
	if seq := s.seq.Swap(nil); seq != nil {
		seq.Stop()
	}
	var err error
	if s.sink != nil {
		if cerr := s.sink.Close(); cerr != nil {
			err = fmt.Errorf("close %s sink: %w", s.cfg.Sink, cerr)
		}
		s.sink = nil
	}
	err = errors.Join(err, s.Err())
	s.mu.Lock()
	s.enabled = false
	s.mixer.ClearLocked()
	for _, c := range s.channels {
		c.AllSoundOffLocked()
	}
	s.pool.Clear()
	s.mu.Unlock()
	s.log.Info("synthesizer closed")
	return err
}

// IsOpen reports whether Open succeeded and Close has not been called since.
func (s *Synthesizer) IsOpen() bool { return s.opened.Load() }

// Err returns the error that stopped the output sink since the last Open.
// Once it is set the synthesizer rejects Send and Play until reopened.
func (s *Synthesizer) Err() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSinkFailed, s.failErr)
}

// Failed is closed when the output sink stops on an error.
func (s *Synthesizer) Failed() <-chan struct{} {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failed
}

func (s *Synthesizer) sinkFailed(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failErr != nil {
		return
	}
	s.failErr = err
	close(s.failed)
}

// LoadInstrument compiles ins and adds it to the table, replacing any
// instrument with the same key.
func (s *Synthesizer) LoadInstrument(ins *model.Instrument) error {
	return s.LoadInstruments(ins)
}

// LoadInstruments loads all of list or, on the first invalid instrument,
// none of it.
func (s *Synthesizer) LoadInstruments(list ...*model.Instrument) error {
	compiled := make([]*performer.Instrument, 0, len(list))
	for _, ins := range list {
		if ins == nil {
			return ErrNilInstrument
		}
		if err := ins.Validate(); err != nil {
			return fmt.Errorf("load instrument: %w", err)
		}
		compiled = append(compiled, performer.CompileInstrument(ins))
	}
	s.mu.Lock()
	for _, ci := range compiled {
		s.instruments[ci.Key()] = ci
	}
	s.invalidateLocked()
	s.mu.Unlock()
	for _, ci := range compiled {
		s.log.Debug("instrument loaded", "key", ci.Key(), "name", ci.Name, "performers", len(ci.Performers))
	}
	return nil
}

// LoadBank loads every instrument of b.
func (s *Synthesizer) LoadBank(b *intbank.Bank) error {
	if err := s.LoadInstruments(b.Instruments...); err != nil {
		return fmt.Errorf("bank %q: %w", b.Name, err)
	}
	s.log.Info("bank loaded", "name", b.Name, "instruments", len(b.Instruments))
	return nil
}

// UnloadInstrument removes the instrument with ins's key. Sounding voices
// finish with the performers they started with.
func (s *Synthesizer) UnloadInstrument(ins *model.Instrument) error {
	if ins == nil {
		return ErrNilInstrument
	}
	s.mu.Lock()
	_, ok := s.instruments[ins.Key()]
	delete(s.instruments, ins.Key())
	s.invalidateLocked()
	s.mu.Unlock()
	if ok {
		s.log.Debug("instrument unloaded", "key", ins.Key(), "name", ins.Name)
	}
	return nil
}

func (s *Synthesizer) invalidateLocked() {
	for _, c := range s.channels {
		c.InvalidateInstrumentLocked()
	}
}

// Instruments lists the loaded instruments in no particular order.
func (s *Synthesizer) Instruments() []*model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Instrument, 0, len(s.instruments))
	for _, ci := range s.instruments {
		out = append(out, ci.Instrument)
	}
	return out
}

// FindInstrument resolves (bank, program, percussion) through the GM2
// fallback chain. bank is MSB<<7 | LSB.
func (s *Synthesizer) FindInstrument(bank, program int, percussion bool) *model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ci := s.findLocked(bank, program, percussion); ci != nil {
		return ci.Instrument
	}
	return nil
}

func (s *Synthesizer) findLocked(bank, program int, percussion bool) *performer.Instrument {
	switch bank >> 7 {
	case bankPercussionMSB:
		percussion = true
	case bankMelodicMSB:
		percussion = false
	}
	for _, b := range [...]int{bank, bank &^ 0x7F, bank & 0x7F, 0} {
		if ci := s.instruments[model.InstrumentKey(b, program, percussion)]; ci != nil {
			return ci
		}
	}
	return s.instruments[model.InstrumentKey(0, 0, percussion)]
}

// Channels returns the 16 MIDI channels.
func (s *Synthesizer) Channels() []*channel.Channel { return s.channels }

// Channel returns channel i, or nil when i is out of range.
func (s *Synthesizer) Channel(i int) *channel.Channel {
	if i < 0 || i >= len(s.channels) {
		return nil
	}
	return s.channels[i]
}

// Send applies a raw MIDI message immediately. Active sensing (0xFE) arms
// the one-second watchdog; system reset (0xFF) restores every channel.
func (s *Synthesizer) Send(raw []byte) error {
	if !s.opened.Load() {
		return ErrClosed
	}
	if err := s.Err(); err != nil {
		return err
	}
	if len(raw) == 0 || raw[0]&0x80 == 0 {
		return fmt.Errorf("%w: % X", ErrInvalidMessage, raw)
	}
	switch raw[0] {
	case 0xFE:
		s.mu.Lock()
		s.mixer.SetActiveSensingLocked(true)
		s.mixer.ActivityLocked()
		s.mu.Unlock()
		return nil
	case 0xFF:
		for _, c := range s.channels {
			c.AllSoundOff()
			c.ResetAllControllers(true)
			c.ProgramChangeBank(0, 0)
		}
		return nil
	}
	if raw[0] >= 0xF0 {
		return nil
	}
	if len(raw) < channelMessageLen(raw[0]) {
		return fmt.Errorf("%w: % X", ErrInvalidMessage, raw)
	}
	msg := midi.Message(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.ActivityLocked()
	if !(*host)(s).dispatch(msg) {
		return fmt.Errorf("%w: % X", ErrInvalidMessage, raw)
	}
	return nil
}

// Schedule queues msg for the given sample position. Positions before the
// current one play at the start of the next tick.
func (s *Synthesizer) Schedule(at int64, msg midi.Message) { s.mixer.Schedule(at, msg) }

// SamplePosition is the number of frames rendered since New.
func (s *Synthesizer) SamplePosition() int64 { return s.mixer.SamplePosition() }

// SetTuning installs a tuning program: cents is the pitch of each key
// (key*100 in equal temperament). Channels that already selected the
// program hear the change on their next note.
func (s *Synthesizer) SetTuning(bank, program int, cents [128]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]int{bank, program}
	if t := s.tunings[k]; t != nil {
		*t = cents
		return
	}
	t := voice.Tuning(cents)
	s.tunings[k] = &t
}

// SetMasterVolume sets the output gain in [0, 1]. The mixer applies it
// squared with a ramp.
func (s *Synthesizer) SetMasterVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master.Volume = clampUnit(volume)
	s.mixer.ActivityLocked()
}

func (s *Synthesizer) MasterVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master.Volume
}

// SetMasterBalance sets the stereo balance in [0, 1]; 0.5 is centre.
func (s *Synthesizer) SetMasterBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master.Balance = clampUnit(balance)
}

func (s *Synthesizer) MasterBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master.Balance
}

// SetMasterTuning offsets every voice by coarse semitones (-64..63) and fine
// cents (-100..100).
func (s *Synthesizer) SetMasterTuning(coarse int, fine float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master.CoarseTuning = clampUnit(0.5 + float64(coarse)*100/(2*12800))
	s.master.FineTuning = clampUnit(0.5 + fine/200)
}

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
func (s *Synthesizer) SetEQBand(band int, gain float32) {
	s.mixer.EQ().SetGain(band, gain)
}

// EQBand returns the current gain for a master EQ band (0-4).
func (s *Synthesizer) EQBand(band int) float32 {
	return s.mixer.EQ().Gain(band)
}

func (s *Synthesizer) SetReverb(on bool) { s.mixer.SetReverb(on) }
func (s *Synthesizer) SetChorus(on bool) { s.mixer.SetChorus(on) }
func (s *Synthesizer) SetAGC(on bool)    { s.mixer.SetAGC(on) }

// SetActiveSensing arms or disarms the watchdog that silences every channel
// after a second without MIDI input.
func (s *Synthesizer) SetActiveSensing(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.SetActiveSensingLocked(on)
	s.mixer.ActivityLocked()
}

// ActiveVoices counts voices that have not yet been freed.
func (s *Synthesizer) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Active()
}

// ChannelVoices counts the voices not yet freed on each MIDI channel.
func (s *Synthesizer) ChannelVoices() [16]int {
	var n [16]int
	s.mu.Lock()
	s.pool.ActiveByChannel(n[:])
	s.mu.Unlock()
	return n
}

// Play starts song on the output stream, replacing any song already playing.
func (s *Synthesizer) Play(song *intseq.Song, opts intseq.Options) (*intseq.Sequencer, error) {
	if !s.opened.Load() {
		return nil, ErrClosed
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if song.SampleRate != s.cfg.SampleRate {
		return nil, fmt.Errorf("song at %d Hz on a %d Hz synthesizer: %w", song.SampleRate, s.cfg.SampleRate, ErrInvalidConfig)
	}
	seq := intseq.NewWithOptions(song, engine{s}, opts)
	if old := s.seq.Swap(seq); old != nil {
		old.Stop()
	}
	s.log.Debug("song started", "events", len(song.Events), "duration", song.Duration())
	return seq, nil
}

// StopSong stops the song started by Play, if any.
func (s *Synthesizer) StopSong() {
	if seq := s.seq.Swap(nil); seq != nil {
		seq.Stop()
	}
}

// Process renders the next len(dst)/2 interleaved stereo frames. It is the
// pull entry point when the synthesizer was opened with SinkNone, and
// yields silence while the synthesizer is closed.
func (s *Synthesizer) Process(dst []float32) {
	if !s.opened.Load() {
		clear(dst)
		return
	}
	output{s}.Process(dst)
}

func (s *Synthesizer) render(dst []float32) {
	s.mixer.Process(dst)
	if s.cfg.SampleTap != nil {
		s.cfg.SampleTap(dst)
	}
}

// output is the stream source: the playing song when there is one, the
// bare mixer otherwise.
type output struct{ s *Synthesizer }

func (o output) Process(dst []float32) {
	if seq := o.s.seq.Load(); seq != nil && !seq.Finished() {
		seq.Process(dst)
		return
	}
	o.s.render(dst)
}

// engine is the synthesizer as seen by a sequencer.
type engine struct{ *Synthesizer }

func (e engine) Process(dst []float32) { e.render(dst) }

// host is the synthesizer as seen by its channels and mixer. Every method
// runs with the control mutex held.
type host Synthesizer

func (h *host) Pool() *voice.Pool { return h.pool }

func (h *host) Instrument(bank, program int, percussion bool) *performer.Instrument {
	return (*Synthesizer)(h).findLocked(bank, program, percussion)
}

func (h *host) Tuning(bank, program int) *voice.Tuning { return h.tunings[[2]int{bank, program}] }

func (h *host) Channels() []*channel.Channel { return h.channels }

func (h *host) Activity() { h.mixer.ActivityLocked() }

func (h *host) EventDelay() int { return h.mixer.EventDelayLocked() }

func (h *host) Open() bool { return h.enabled }

func (h *host) DispatchLocked(msg midi.Message) { h.dispatch(msg) }

func (h *host) dispatch(msg midi.Message) bool {
	var ch uint8
	if !msg.GetChannel(&ch) {
		return false
	}
	return h.channels[ch].HandleLocked(msg)
}

func channelMessageLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	}
	return 3
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
