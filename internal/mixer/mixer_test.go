package mixer

import (
	"sync"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/softsynth-go/internal/channel"
	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/performer"
	"github.com/cbegin/softsynth-go/internal/voice"
)

const (
	testRate    = 44100
	testControl = 147
)

type testHost struct {
	mu       sync.Mutex
	pool     *voice.Pool
	ins      *performer.Instrument
	master   *voice.Master
	channels []*channel.Channel
	mixer    *Mixer
}

func (h *testHost) Pool() *voice.Pool { return h.pool }
func (h *testHost) Instrument(bank, program int, percussion bool) *performer.Instrument {
	return h.ins
}
func (h *testHost) Tuning(bank, program int) *voice.Tuning { return nil }
func (h *testHost) Channels() []*channel.Channel           { return h.channels }
func (h *testHost) Activity()                              { h.mixer.ActivityLocked() }
func (h *testHost) EventDelay() int                        { return h.mixer.EventDelayLocked() }
func (h *testHost) Open() bool                             { return true }
func (h *testHost) DispatchLocked(msg midi.Message) {
	var ch uint8
	if msg.GetChannel(&ch) {
		h.channels[ch].HandleLocked(msg)
	}
}

func newTestMixer(t *testing.T, cfg Config) *testHost {
	t.Helper()
	data := make([]float32, 500)
	for i := range data {
		data[i] = 0.25
	}
	w := model.NewWavetable(data, testRate)
	w.LoopType = model.LoopForward
	w.LoopLength = 500
	w.SetRootKey(60, 0)

	cfg.SampleRate, cfg.ControlRate = testRate, testControl
	h := &testHost{
		pool:   voice.NewPool(8, voice.AllocDefault, testRate, testControl),
		ins:    performer.CompileInstrument(&model.Instrument{Name: "test", Performers: []*model.Performer{model.NewPerformer(w)}}),
		master: voice.NewMaster(),
	}
	for i := 0; i < 16; i++ {
		h.channels = append(h.channels, channel.New(i, h, &h.mu, h.master, testControl))
	}
	h.mixer = New(cfg, &h.mu, h, h.pool, h.master)
	return h
}

func (h *testHost) tick() []float32 {
	out := make([]float32, h.mixer.Frames()*2)
	h.mixer.Process(out)
	return out
}

func energy(buf []float32) float64 {
	var e float64
	for _, s := range buf {
		e += float64(s) * float64(s)
	}
	return e
}

func TestNoteRendersThenFallsSilent(t *testing.T) {
	h := newTestMixer(t, Config{})
	h.channels[0].NoteOn(60, 100)
	if e := energy(h.tick()); e == 0 {
		t.Fatal("held note should produce sound")
	}
	h.channels[0].NoteOff(60)
	for i := 0; i < 100 && !h.mixer.Silent(); i++ {
		h.tick()
	}
	if !h.mixer.Silent() {
		t.Fatal("mixer should idle after the release")
	}
	if h.pool.Active() != 0 {
		t.Fatalf("%d voices still active", h.pool.Active())
	}
	if e := energy(h.tick()); e != 0 {
		t.Fatal("silence path should stream zeros")
	}
}

func TestSilencePathReconnectsOnActivity(t *testing.T) {
	h := newTestMixer(t, Config{})
	for i := 0; i < 10; i++ {
		h.tick()
	}
	if !h.mixer.Silent() {
		t.Fatal("an idle mixer should switch to the silence path")
	}
	before := h.mixer.SamplePosition()
	h.channels[0].NoteOn(64, 100)
	if h.mixer.Silent() {
		t.Fatal("note-on should wake the mixer")
	}
	if e := energy(h.tick()); e == 0 {
		t.Fatal("woken mixer should render the note in the next chunk")
	}
	if after := h.mixer.SamplePosition(); after <= before {
		t.Fatalf("sample clock went from %d to %d", before, after)
	}
}

func TestSilentTicksBeforeIdle(t *testing.T) {
	h := newTestMixer(t, Config{})
	for i := 0; i < silentTicks; i++ {
		h.tick()
		if h.mixer.Silent() {
			t.Fatalf("idled after %d ticks", i+1)
		}
	}
	h.tick()
	if !h.mixer.Silent() {
		t.Fatal("should idle after more than five silent ticks")
	}
}

func TestScheduledNoteStartsAtItsFrame(t *testing.T) {
	h := newTestMixer(t, Config{})
	const offset = 100
	h.mixer.Schedule(h.mixer.SamplePosition()+offset, midi.NoteOn(0, 60, 100))
	if h.mixer.Pending() != 1 {
		t.Fatal("message should wait in the queue")
	}
	out := h.tick()
	if h.mixer.Pending() != 0 {
		t.Fatal("message should be dispatched by the tick covering its frame")
	}
	if e := energy(out[:2*offset]); e != 0 {
		t.Fatalf("sound before the scheduled frame: %g", e)
	}
	if e := energy(out[2*offset:]); e == 0 {
		t.Fatal("no sound after the scheduled frame")
	}
}

func TestScheduleKeepsOrder(t *testing.T) {
	h := newTestMixer(t, Config{})
	pos := h.mixer.SamplePosition()
	h.mixer.Schedule(pos+10, midi.NoteOff(0, 60))
	h.mixer.Schedule(pos+5, midi.NoteOn(0, 60, 100))
	h.mixer.Schedule(pos+10, midi.NoteOn(0, 62, 100))
	h.mu.Lock()
	got := []int64{h.mixer.queue[0].at, h.mixer.queue[1].at, h.mixer.queue[2].at}
	second := h.mixer.queue[1].msg
	h.mu.Unlock()
	if got[0] != pos+5 || got[1] != pos+10 || got[2] != pos+10 {
		t.Fatalf("queue order %v", got)
	}
	var ch, key uint8
	if !second.GetNoteEnd(&ch, &key) || key != 60 {
		t.Fatal("equal timestamps should keep insertion order")
	}
}

func TestMasterBalance(t *testing.T) {
	h := newTestMixer(t, Config{})
	h.mu.Lock()
	h.master.Balance = 1
	h.mu.Unlock()
	h.channels[0].NoteOn(60, 100)
	h.tick()
	out := h.tick()
	var left, right float64
	for i := 0; i < len(out); i += 2 {
		left += float64(out[i] * out[i])
		right += float64(out[i+1] * out[i+1])
	}
	if left != 0 || right == 0 {
		t.Fatalf("hard right balance: left=%g right=%g", left, right)
	}
}

func TestMasterVolumeRamp(t *testing.T) {
	h := newTestMixer(t, Config{})
	h.channels[0].NoteOn(60, 100)
	h.tick()
	full := h.tick()
	h.mu.Lock()
	h.master.Volume = 0.5
	h.mu.Unlock()
	ramped := h.tick()
	settled := h.tick()
	n := len(full)
	if ramped[n-2] >= full[n-2] || ramped[0] > full[0] {
		t.Fatal("gain should fall across the ramped tick")
	}
	ratio := settled[n-2] / full[n-2]
	if ratio < 0.24 || ratio > 0.26 {
		t.Fatalf("half volume should scale by 0.25, got %f", ratio)
	}
}

func TestActiveSensingTimeout(t *testing.T) {
	h := newTestMixer(t, Config{})
	h.channels[0].NoteOn(60, 100)
	h.mu.Lock()
	h.mixer.SetActiveSensingLocked(true)
	h.mu.Unlock()
	for i := 0; i < 2*testControl; i++ {
		h.tick()
	}
	h.mu.Lock()
	armed := h.mixer.ActiveSensingLocked()
	h.mu.Unlock()
	if armed {
		t.Fatal("watchdog should disarm after firing")
	}
	if h.pool.Active() != 0 {
		t.Fatal("watchdog should silence every channel")
	}
}

func TestSendEffectsAddTail(t *testing.T) {
	dry := newTestMixer(t, Config{})
	wet := newTestMixer(t, Config{Reverb: true, Chorus: true})
	for _, h := range []*testHost{dry, wet} {
		h.channels[0].ControlChange(91, 127)
		h.channels[0].ControlChange(93, 127)
		h.channels[0].NoteOn(60, 100)
		for i := 0; i < 4; i++ {
			h.tick()
		}
		h.channels[0].AllSoundOff()
		h.tick()
	}
	if e := energy(dry.tick()); e != 0 {
		t.Fatalf("dry mix should stop with the voice, energy %g", e)
	}
	if e := energy(wet.tick()); e == 0 {
		t.Fatal("reverb and chorus should ring after the voice stops")
	}
}

func TestAGCLimitsOutput(t *testing.T) {
	h := newTestMixer(t, Config{AGC: true})
	for key := 60; key < 68; key++ {
		h.channels[0].NoteOn(key, 127)
	}
	for i := 0; i < 3; i++ {
		for _, s := range h.tick() {
			if s > 1 || s < -1 {
				t.Fatalf("sample %f escaped the limiter", s)
			}
		}
	}
}
