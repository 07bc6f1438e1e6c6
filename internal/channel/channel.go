// Package channel implements the per-MIDI-channel controller state machine:
// note dispatch through the instrument's director, pedals, portamento,
// RPN/NRPN data entry and channel mode messages.
package channel

import (
	"math"
	"sync"

	"github.com/cbegin/softsynth-go/internal/performer"
	"github.com/cbegin/softsynth-go/internal/voice"
)

// PercussionChannel is MIDI channel 10.
const PercussionChannel = 9

// rpnNull deselects both parameter numbers.
const rpnNull = 127<<7 + 127

// Host is the synthesizer as seen from a channel. The channel never owns it.
type Host interface {
	Pool() *voice.Pool
	// Instrument resolves (bank, program, percussion) through the fallback chain; nil if none.
	Instrument(bank, program int, percussion bool) *performer.Instrument
	// Tuning returns the tuning program at (bank, program); nil means equal temperament.
	Tuning(bank, program int) *voice.Tuning
	Channels() []*Channel
	// Activity wakes the mixer from its silent state.
	Activity()
	// EventDelay is the frame offset of the message being dispatched.
	EventDelay() int
	// Open reports whether the synthesizer accepts channel calls. Called with
	// the control mutex held.
	Open() bool
}

// Channel is one MIDI channel. Exported methods take the control mutex
// shared with the mixer; methods suffixed Locked expect the caller to hold it.
type Channel struct {
	mu          *sync.Mutex
	host        Host
	num         int
	controlRate float64
	ctl         *voice.Controls

	bank       int
	program    int
	instrument *performer.Instrument

	cc              [128]int
	rpn             map[int]int
	nrpn            map[int]int
	rpnSel          int
	nrpnSel         int
	bend            int
	channelPressure int
	polyPressure    [128]int
	lastVelocity    [128]int

	mono, omni    bool
	mute, solo    bool
	soloMute      bool
	sustain       bool
	sostenuto     bool
	portamento    bool
	portamentoKey int // cc84, -1 when unset
	monoLast      int
	lastNotes     []int

	tuningBank    int
	tuningProgram int

	matches []int
}

// New returns channel num at its power-on state.
func New(num int, host Host, mu *sync.Mutex, master *voice.Master, controlRate float64) *Channel {
	c := &Channel{
		mu:          mu,
		host:        host,
		num:         num,
		controlRate: controlRate,
		ctl:         voice.NewControls(master),
		rpn:         map[int]int{},
		nrpn:        map[int]int{},
	}
	c.resetAllControllers(true)
	return c
}

// Number returns the zero-based channel number.
func (c *Channel) Number() int { return c.num }

// Controls exposes the live normalised controller state read by voices.
func (c *Channel) Controls() *voice.Controls { return c.ctl }

// lockOpen takes the control mutex and keeps it only while the host is open.
// Calls on a closed synthesizer are no-ops.
func (c *Channel) lockOpen() bool {
	c.mu.Lock()
	if c.host.Open() {
		return true
	}
	c.mu.Unlock()
	return false
}

func (c *Channel) percussion() bool { return c.num == PercussionChannel }

// voices calls fn for every sounding voice of this channel.
func (c *Channel) voices(fn func(v *voice.Voice)) {
	vs := c.host.Pool().Voices()
	for i := range vs {
		if v := &vs[i]; v.Channel == c.num && v.Sounding() {
			fn(v)
		}
	}
}

func (c *Channel) NoteOn(key, velocity int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.noteOn(clamp7(key), clamp7(velocity))
}

func (c *Channel) NoteOff(key int) {
	c.NoteOffVelocity(key, 64)
}

func (c *Channel) NoteOffVelocity(key, velocity int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.noteOff(clamp7(key), clamp7(velocity))
}

func (c *Channel) noteOn(key, velocity int) {
	if velocity == 0 {
		c.noteOff(key, 64)
		return
	}

	if c.sustain {
		c.sustain = false
		c.voices(func(v *voice.Voice) {
			if v.Key == key && (v.Sustain || v.KeyDown) && !v.ReleaseTriggered {
				v.Flush()
			}
		})
		c.sustain = true
	}

	c.host.Activity()

	if c.mono && c.portamento {
		found := false
		c.voices(func(v *voice.Voice) {
			if v.KeyDown && !v.ReleaseTriggered {
				v.Glide(key)
				found = true
			}
		})
		if found {
			c.monoLast = key
			c.portamentoKey = -1
			return
		}
	}
	if c.mono && c.portamentoKey >= 0 {
		from := c.portamentoKey
		found := false
		c.voices(func(v *voice.Voice) {
			if v.Key == from && v.KeyDown && !v.ReleaseTriggered {
				v.Glide(key)
				found = true
			}
		})
		if found {
			c.monoLast = key
			c.portamentoKey = -1
			return
		}
	}

	if c.mono {
		c.allNotesOff()
	}

	ins := c.currentInstrument()
	if ins == nil {
		return
	}

	c.lastVelocity[key] = velocity
	glide := c.glideSource()
	if c.mono {
		c.monoLast = key
	}
	c.play(ins, key, velocity, false, glide)
}

// glideSource returns the pitch in semitones a new note glides from, or -1.
func (c *Channel) glideSource() float64 {
	if c.portamentoKey >= 0 {
		from := c.ctl.Tuning[c.portamentoKey] / 100
		c.portamentoKey = -1
		return from
	}
	if !c.portamento {
		return -1
	}
	if c.mono {
		if c.monoLast < 0 {
			return -1
		}
		return c.ctl.Tuning[c.monoLast] / 100
	}
	n := len(c.lastNotes)
	if n == 0 {
		return -1
	}
	key := c.lastNotes[n-1]
	c.lastNotes = c.lastNotes[:n-1]
	return c.ctl.Tuning[key] / 100
}

func (c *Channel) play(ins *performer.Instrument, key, velocity int, release bool, glide float64) {
	tuned := int(math.Round(c.ctl.Tuning[key] / 100))
	tuned = clamp7(tuned)
	c.matches = ins.Director.Match(tuned, velocity, release, c.matches[:0])
	if len(c.matches) == 0 {
		return
	}
	pool := c.host.Pool()
	id := pool.NextID()
	from := 0
	for i, ix := range c.matches {
		p := ins.Performers[ix]
		if i == 0 && p.ExclusiveClass != 0 {
			c.voices(func(v *voice.Voice) {
				if v.ID == id || v.ExclusiveClass != p.ExclusiveClass {
					return
				}
				if p.SelfNonExclusive && v.Key == key {
					return
				}
				v.Shutdown()
			})
		}
		slot := pool.FindFree(from, c.num)
		if slot < 0 {
			return
		}
		pool.Play(slot, voice.Note{
			Channel:          c.num,
			Controls:         c.ctl,
			Performer:        p,
			ID:               id,
			Key:              key,
			Velocity:         velocity,
			ReleaseTriggered: release,
			Mute:             c.mute,
			SoloMute:         c.soloMute,
			GlideFrom:        glide,
			Delay:            c.host.EventDelay(),
		})
		from = slot + 1
	}
}

func (c *Channel) noteOff(key, velocity int) {
	c.host.Activity()
	if c.portamento && !c.mono {
		c.lastNotes = append(c.lastNotes, key)
		if len(c.lastNotes) > 128 {
			c.lastNotes = c.lastNotes[1:]
		}
	}
	sustain := c.sustain
	c.voices(func(v *voice.Voice) {
		if v.Key == key && v.KeyDown && !v.ReleaseTriggered {
			v.NoteOff(sustain)
		}
	})
	c.host.Pool().CancelPending(c.num, key)

	ins := c.currentInstrument()
	if ins == nil {
		return
	}
	c.play(ins, key, c.lastVelocity[key], true, -1)
}

func (c *Channel) currentInstrument() *performer.Instrument {
	if c.instrument == nil {
		c.instrument = c.host.Instrument(c.bank, c.program, c.percussion())
	}
	return c.instrument
}

// InvalidateInstrumentLocked drops the cached instrument so the next note-on
// resolves it again.
func (c *Channel) InvalidateInstrumentLocked() { c.instrument = nil }

func (c *Channel) ProgramChange(program int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.programChange(c.bank, clamp7(program))
}

// ProgramChangeBank selects a program in a 14-bit bank.
func (c *Channel) ProgramChangeBank(bank, program int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.programChange(clamp14(bank), clamp7(program))
}

func (c *Channel) programChange(bank, program int) {
	c.bank = bank
	c.program = program
	c.instrument = nil
}

func (c *Channel) Program() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.program
}

func (c *Channel) Bank() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bank
}

// SetPitchBend sets the 14-bit bend, 8192 being centre.
func (c *Channel) SetPitchBend(bend int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.setPitchBend(clamp14(bend))
}

func (c *Channel) setPitchBend(bend int) {
	c.bend = bend
	c.ctl.Bend = float64(bend) / 16384
	c.voices(func(v *voice.Voice) { v.PitchBend() })
}

func (c *Channel) PitchBend() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bend
}

func (c *Channel) SetChannelPressure(pressure int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.setChannelPressure(clamp7(pressure))
}

func (c *Channel) setChannelPressure(pressure int) {
	c.channelPressure = pressure
	c.ctl.ChannelPressure = float64(pressure) / 128
	c.voices(func(v *voice.Voice) { v.ChannelPressure() })
}

func (c *Channel) ChannelPressure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelPressure
}

func (c *Channel) SetPolyPressure(key, pressure int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.setPolyPressure(clamp7(key), clamp7(pressure))
}

func (c *Channel) setPolyPressure(key, pressure int) {
	c.polyPressure[key] = pressure
	c.ctl.PolyPressure[key] = float64(pressure) / 128
	c.voices(func(v *voice.Voice) {
		if v.Key == key {
			v.PolyPressure()
		}
	})
}

func (c *Channel) PolyPressure(key int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polyPressure[clamp7(key)]
}

func (c *Channel) AllNotesOff() {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.allNotesOff()
}

func (c *Channel) allNotesOff() {
	sustain := c.sustain
	c.voices(func(v *voice.Voice) {
		if v.KeyDown && !v.ReleaseTriggered {
			v.NoteOff(sustain)
		}
	})
}

func (c *Channel) AllSoundOff() {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.AllSoundOffLocked()
}

// AllSoundOffLocked silences every voice of the channel at once.
func (c *Channel) AllSoundOffLocked() {
	c.voices(func(v *voice.Voice) { v.SoundOff() })
}

// LocalControl has no local keyboard to connect; it always reports off.
func (c *Channel) LocalControl(on bool) bool { return false }

func (c *Channel) SetMono(on bool) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.setMono(on)
}

func (c *Channel) setMono(on bool) {
	c.allNotesOff()
	c.mono = on
	c.monoLast = -1
}

func (c *Channel) Mono() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *Channel) SetOmni(on bool) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.setOmni(on)
}

func (c *Channel) setOmni(on bool) {
	c.allNotesOff()
	c.omni = on
}

func (c *Channel) Omni() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.omni
}

func (c *Channel) SetMute(on bool) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.mute = on
	c.voices(func(v *voice.Voice) { v.SetMute(on) })
}

func (c *Channel) Mute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mute
}

// SetSolo solos the channel. While any channel is soloed every other
// channel is muted.
func (c *Channel) SetSolo(on bool) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.solo = on
	all := c.host.Channels()
	anySolo := false
	for _, ch := range all {
		if ch.solo {
			anySolo = true
			break
		}
	}
	for _, ch := range all {
		ch.setSoloMute(anySolo && !ch.solo)
	}
}

func (c *Channel) setSoloMute(on bool) {
	if c.soloMute == on {
		return
	}
	c.soloMute = on
	c.voices(func(v *voice.Voice) { v.SetSoloMute(on) })
}

func (c *Channel) Solo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solo
}

func clamp7(v int) int {
	return min(max(v, 0), 127)
}

func clamp14(v int) int {
	return min(max(v, 0), 16383)
}
