// Package voice renders single notes: per-voice modulation, envelopes, LFOs,
// resampling, filtering and mixing into the shared channel buffers, plus the
// fixed pool voices are allocated from.
package voice

import (
	"math"

	"github.com/cbegin/softsynth-go/internal/envelope"
	"github.com/cbegin/softsynth-go/internal/lfo"
	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/performer"
)

// State is the lifecycle state of a pool slot.
type State int

const (
	StateFree State = iota
	StateActive
	// StateStealing is a voice silencing itself. A replacement note may be queued on it.
	StateStealing
	// StateQueued is a silent slot whose queued note starts on the current tick.
	StateQueued
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateActive:
		return "active"
	case StateStealing:
		return "stealing"
	case StateQueued:
		return "queued"
	}
	return "unknown"
}

// Note is everything needed to start a voice on a slot.
type Note struct {
	Channel          int
	Controls         *Controls
	Performer        *performer.Compiled
	ID               int64
	Key              int
	Velocity         int
	ReleaseTriggered bool
	Mute             bool
	SoloMute         bool
	// GlideFrom is the key to glide from, in tuned semitones; negative for none.
	GlideFrom float64
	// Delay offsets the start of the note into the current buffer, in frames.
	Delay int
}

// Buffers are the mixer's per-tick channel buffers. Delay buffers receive the
// part of a delayed voice that spills past the end of the current tick.
type Buffers struct {
	Left, Right, Mono, Effect1, Effect2                          []float32
	DelayLeft, DelayRight, DelayMono, DelayEffect1, DelayEffect2 []float32
}

// Voice is one pool slot. Fields are read by the channel state machine;
// changes go through methods.
type Voice struct {
	State    State
	ID       int64
	Channel  int
	Key      int
	Velocity int
	// On is the note gate: set at note-on, cleared once the note is released.
	// A pedal-held note stays On.
	On               bool
	KeyDown          bool
	Sustain          bool
	Sostenuto        bool
	ReleaseTriggered bool
	ExclusiveClass   int
	Portamento       bool

	pending    Note
	hasPending bool

	perf     *performer.Compiled
	ctl      *Controls
	mute     bool
	soloMute bool

	slots     [performer.NumSlots]float64
	last      []float64
	keynumber float64
	velocity  float64
	gate      float64
	tunedKey  float64

	eg  [2]envelope.Generator
	lfo [2]lfo.LFO

	sampleRate  float64
	controlRate float64
	delay       int

	attenuation float64
	started     bool
	stopping    bool
	soundOff    bool
	end         bool

	// Resolved render parameters, handed to out by commit.
	wave              *model.Wavetable
	reopen, oscOff    bool
	pitch             float64
	cutoff, resonance float64
	gainL, gainR      float32
	send1, send2      float32

	out output
}

// Pending returns the note queued on this slot, if any.
func (v *Voice) Pending() (Note, bool) { return v.pending, v.hasPending }

// Performer returns the performer the voice is playing.
func (v *Voice) Performer() *performer.Compiled { return v.perf }

// Value returns the resolved value of a destination slot.
func (v *Voice) Value(slot int) float64 { return v.slots[slot] }

// Envelope returns envelope i (0 is the volume envelope).
func (v *Voice) Envelope(i int) *envelope.Generator { return &v.eg[i] }

func (v *Voice) start(n Note) {
	p := n.Performer
	v.State = StateActive
	v.ID = n.ID
	v.Channel = n.Channel
	v.Key = n.Key
	v.Velocity = n.Velocity
	v.On, v.KeyDown = true, true
	v.Sustain, v.Sostenuto = false, false
	v.ReleaseTriggered = n.ReleaseTriggered
	v.ExclusiveClass = p.ExclusiveClass
	v.Portamento = false
	v.pending, v.hasPending = Note{}, false

	v.perf = p
	v.ctl = n.Controls
	v.mute, v.soloMute = n.Mute, n.SoloMute
	v.started, v.stopping, v.soundOff, v.end = false, false, false, false
	v.delay = n.Delay
	if v.delay < 0 || v.delay >= len(v.out.buf) {
		v.delay = 0
	}

	v.tunedKey = v.ctl.Tuning[n.Key] / 100
	v.keynumber = v.tunedKey / 128
	v.velocity = float64(n.Velocity) / 128
	v.gate = 1
	if n.GlideFrom >= 0 {
		v.keynumber = n.GlideFrom / 128
		v.Portamento = true
	}

	v.slots = [performer.NumSlots]float64{}
	if cap(v.last) < len(p.Blocks) {
		v.last = make([]float64, len(p.Blocks))
	}
	v.last = v.last[:len(p.Blocks)]
	clear(v.last)

	for i := range v.eg {
		v.eg[i].Reset(v.controlRate)
		v.eg[i].Start()
	}
	for i := range v.lfo {
		v.lfo[i].Reset(v.controlRate)
	}
	v.attenuation = 0
	v.wave, v.reopen, v.oscOff = nil, true, false
	if len(p.Oscillators) > 0 {
		v.wave = p.Oscillators[0]
		v.attenuation = v.wave.Attenuation
	} else {
		v.stopping = true
	}

	for ix := 0; ix < p.NoteOnBlocks; ix++ {
		v.eval(ix)
	}
	if p.ForcedKeynumber {
		v.keynumber = v.slots[performer.SlotKey] / 128
	}
	if p.ForcedVelocity {
		v.velocity = v.slots[performer.SlotVel] / 128
	}
	for ix := p.NoteOnBlocks; ix < len(p.Blocks); ix++ {
		v.eval(ix)
	}
	v.update()
}

// free releases the slot. A queued note keeps the slot reserved.
func (v *Voice) free() {
	v.stopping = false
	v.perf = nil
	v.ctl = nil
	if v.hasPending {
		v.State = StateQueued
		return
	}
	v.State = StateFree
}

// queue records n as the note that takes over once the voice is silent.
func (v *Voice) queue(n Note) {
	v.pending, v.hasPending = n, true
	if v.State == StateActive {
		v.State = StateStealing
	}
}

func (v *Voice) cancel() {
	v.pending, v.hasPending = Note{}, false
	if v.State == StateQueued {
		v.State = StateFree
	}
}

func (v *Voice) playing() bool {
	return v.State == StateActive || v.State == StateStealing
}

// Sounding reports whether the voice is rendering a note.
func (v *Voice) Sounding() bool { return v.playing() && !v.soundOff }

func (v *Voice) source(r performer.Ref) float64 {
	c := v.ctl
	switch r.Kind {
	case performer.RefKeynumber:
		return v.keynumber
	case performer.RefVelocity:
		return v.velocity
	case performer.RefNoteOn:
		return v.gate
	case performer.RefPitchBend:
		return c.Bend
	case performer.RefChannelPressure:
		return c.ChannelPressure
	case performer.RefPolyPressure:
		return c.PolyPressure[v.Key]
	case performer.RefCC:
		raw := c.CC[r.Index]
		if c.HasKeyBased {
			raw = c.keyBased(v.Key, r.Index, raw)
		}
		return raw
	case performer.RefRPN:
		raw := c.RPN[r.Index]
		if c.HasKeyBased {
			switch r.Index {
			case 1:
				raw = c.keyBased(v.Key, KeyFineTuning, raw)
			case 2:
				raw = c.keyBased(v.Key, KeyCoarseTuning, raw)
			}
		}
		return raw
	case performer.RefNRPN:
		return c.NRPN[r.Index]
	case performer.RefEG:
		return v.eg[r.Index].Out()
	case performer.RefEGActive:
		if v.eg[r.Index].Active() {
			return 1
		}
		return 0
	case performer.RefLFO:
		return v.lfo[r.Index].Out()
	case performer.RefMaster:
		return c.Master.value(r.Index)
	}
	return 0
}

// eval recomputes block ix and moves its destination by the change in its
// contribution, so the resolved sum does not depend on evaluation order.
func (v *Voice) eval(ix int) {
	b := &v.perf.Blocks[ix]
	if b.Dest < 0 {
		return
	}
	dst := &v.slots[b.Dest]
	if math.IsInf(*dst, 0) {
		return
	}
	val := b.Scale
	for i := 0; i < b.NumSources && val != 0; i++ {
		raw := v.source(b.Sources[i])
		if t := b.Transforms[i]; t != nil {
			raw = t.Transform(raw)
		}
		val *= raw
	}
	*dst += val - v.last[ix]
	v.last[ix] = val
}

func (v *Voice) evalAll(ixs []int) {
	for _, ix := range ixs {
		v.eval(ix)
	}
}

// ControlChange re-evaluates the blocks reading controller cc.
func (v *Voice) ControlChange(cc int) {
	if v.playing() {
		v.evalAll(v.perf.CC[cc])
	}
}

// RPNChange re-evaluates the blocks reading registered parameter n.
func (v *Voice) RPNChange(n int) {
	if v.playing() {
		v.evalAll(v.perf.RPN[n])
	}
}

// NRPNChange re-evaluates the blocks reading non-registered parameter n.
func (v *Voice) NRPNChange(n int) {
	if v.playing() {
		v.evalAll(v.perf.NRPN[n])
	}
}

func (v *Voice) PitchBend() {
	if v.playing() {
		v.evalAll(v.perf.MIDI[performer.MIDIPitch])
	}
}

func (v *Voice) ChannelPressure() {
	if v.playing() {
		v.evalAll(v.perf.MIDI[performer.MIDIChannelPressure])
	}
}

func (v *Voice) PolyPressure() {
	if v.playing() {
		v.evalAll(v.perf.MIDI[performer.MIDIPolyPressure])
	}
}

// UpdateTuning re-reads the key's pitch from the channel tuning.
func (v *Voice) UpdateTuning() {
	if !v.playing() {
		return
	}
	v.tunedKey = v.ctl.Tuning[v.Key] / 100
	if !v.Portamento {
		v.keynumber = v.tunedKey / 128
		v.evalAll(v.perf.MIDI[performer.MIDIKeynumber])
	}
}

// Glide retargets a sounding voice to key; the pitch slides there at the
// channel's portamento rate.
func (v *Voice) Glide(key int) {
	v.Key = key
	v.tunedKey = v.ctl.Tuning[key] / 100
	v.Portamento = true
}

func (v *Voice) setGate(g float64) {
	v.gate = g
	v.evalAll(v.perf.MIDI[performer.MIDINoteOn])
}

func (v *Voice) release() {
	v.On = false
	v.oscOff = true
	v.setGate(0)
}

// NoteOff handles the key going up. With the sustain pedal down the note is
// held; a sostenuto-latched note is held too.
func (v *Voice) NoteOff(sustain bool) {
	if !v.KeyDown {
		return
	}
	v.KeyDown = false
	if sustain {
		v.Sustain = true
		return
	}
	if v.Sostenuto {
		return
	}
	v.release()
}

// Flush releases a note regardless of the sustain pedal. Sostenuto still holds it.
func (v *Voice) Flush() {
	v.KeyDown = false
	v.Sustain = false
	if !v.Sostenuto && v.On {
		v.release()
	}
}

// ReleaseSustain ends a sustain-pedal hold.
func (v *Voice) ReleaseSustain() {
	if !v.Sustain {
		return
	}
	v.Sustain = false
	if !v.KeyDown && !v.Sostenuto && v.On {
		v.release()
	}
}

// LatchSostenuto holds the note if its key is down.
func (v *Voice) LatchSostenuto() {
	if v.KeyDown {
		v.Sostenuto = true
	}
}

// ReleaseSostenuto ends a sostenuto hold; the sustain pedal may take over.
func (v *Voice) ReleaseSostenuto(sustain bool) {
	if !v.Sostenuto {
		return
	}
	v.Sostenuto = false
	if v.KeyDown {
		return
	}
	if sustain {
		v.Sustain = true
		return
	}
	if v.On {
		v.release()
	}
}

// Redamp catches a releasing note when the sustain pedal goes down.
func (v *Voice) Redamp() {
	if v.soundOff || v.ReleaseTriggered || v.gate > 0.5 || v.gate < -0.5 {
		return
	}
	v.Sustain = true
	v.On = true
	v.setGate(1)
}

// SoundOff silences the voice within one tick.
func (v *Voice) SoundOff() {
	v.KeyDown = false
	v.On = false
	v.soundOff = true
}

// Shutdown fades the voice out quickly through the envelope shutdown stage.
func (v *Voice) Shutdown() {
	if v.gate < -0.5 {
		return
	}
	v.KeyDown = false
	v.On = false
	v.setGate(-1)
}

func (v *Voice) SetMute(m bool)     { v.mute = m }
func (v *Voice) SetSoloMute(m bool) { v.soloMute = m }

func (v *Voice) egParams(i int) envelope.Params {
	at := func(variable int) float64 { return v.slots[performer.EGSlot(i, variable)] }
	return envelope.Params{
		On:       at(model.EGOn),
		Delay:    at(model.EGDelay) + at(model.EGDelay2),
		Attack:   at(model.EGAttack) + at(model.EGAttack2),
		Hold:     at(model.EGHold) + at(model.EGHold2),
		Decay:    at(model.EGDecay) + at(model.EGDecay2),
		Sustain:  at(model.EGSustain) + at(model.EGSustain2),
		Release:  at(model.EGRelease) + at(model.EGRelease2),
		Shutdown: at(model.EGShutdown),
	}
}

// ControlLogic advances the voice by one control tick.
func (v *Voice) ControlLogic() {
	if !v.playing() {
		return
	}
	if v.out.done && !v.reopen {
		v.stopping = true
	}
	if v.stopping {
		v.free()
		return
	}

	if v.Portamento {
		delta := v.tunedKey - v.keynumber*128
		if math.Abs(delta) < 1e-10 {
			v.keynumber = v.tunedKey / 128
			v.Portamento = false
		} else {
			if rate := v.ctl.PortamentoRate; math.Abs(delta) > rate {
				delta = math.Copysign(rate, delta)
			}
			v.keynumber += delta / 128
		}
		v.evalAll(v.perf.MIDI[performer.MIDIKeynumber])
	}

	for i := range v.eg {
		v.eg[i].Step(v.egParams(i))
	}
	for i := range v.lfo {
		delay := v.slots[performer.LFOSlot(i, model.LFODelay)] + v.slots[performer.LFOSlot(i, model.LFODelay2)]
		freq := v.slots[performer.LFOSlot(i, model.LFOFreq)] + v.slots[performer.LFOSlot(i, model.LFOFreq2)]
		v.lfo[i].Step(delay, freq)
	}
	v.evalAll(v.perf.Tick)
	v.update()
	v.started = true
}

// update derives pitch, filter and mixer gains from the resolved slots.
func (v *Voice) update() {
	s := &v.slots
	v.pitch = s[performer.SlotPitch]
	v.cutoff, v.resonance = s[performer.SlotFilter+model.FilterFreq], s[performer.SlotFilter+model.FilterQ]

	gain := s[performer.SlotMixer+model.MixerGain]
	volume := 0.0
	if gain > -960 && !v.soundOff && !v.mute && !v.soloMute {
		volume = math.Exp((-v.attenuation + gain) * (math.Ln10 / 200))
	}

	pan := clamp(s[performer.SlotMixer+model.MixerPan]/1000, 0, 1)
	var l, r float64
	if pan == 0.5 {
		l = volume * math.Sqrt2 / 2
		r = l
	} else {
		l = volume * math.Cos(pan*math.Pi*0.5)
		r = volume * math.Sin(pan*math.Pi*0.5)
	}
	if balance := s[performer.SlotMixer+model.MixerBalance] / 1000; balance != 0.5 {
		if balance > 0.5 {
			l *= (1 - balance) * 2
		} else {
			r *= balance * 2
		}
	}
	v.gainL, v.gainR = float32(l), float32(r)
	v.send1 = float32(clamp(s[performer.SlotMixer+model.MixerReverb]/1000, 0, 1) * volume)
	v.send2 = float32(clamp(s[performer.SlotMixer+model.MixerChorus]/1000, 0, 1) * volume)

	v.end = v.soundOff || (v.perf.Gated && s[performer.SlotMixer+model.MixerActive] < 0.5)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
