package channel

import (
	"math"

	"github.com/cbegin/softsynth-go/internal/voice"
)

// Controllers left untouched by reset-all-controllers: bank select, volume,
// balance, pan, expression, effect depths, sound controllers, data entry and
// parameter selection, channel mode messages.
var protected = func() [128]bool {
	var p [128]bool
	for _, cc := range []int{0, 32, 7, 8, 10, 11, 91, 92, 93, 94, 95, 6, 38, 96, 97, 98, 99, 100, 101} {
		p[cc] = true
	}
	for cc := 70; cc <= 79; cc++ {
		p[cc] = true
	}
	for cc := 120; cc <= 127; cc++ {
		p[cc] = true
	}
	return p
}()

// ControlChange applies controller cc.
func (c *Channel) ControlChange(cc, value int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.controlChange(clamp7(cc), clamp7(value))
}

// Controller returns the last value of controller cc.
func (c *Channel) Controller(cc int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc[clamp7(cc)]
}

func (c *Channel) controlChange(cc, value int) {
	switch cc {
	case 5:
		c.ctl.PortamentoRate = portamentoRate(value, c.controlRate)
	case 6, 38, 96, 97:
		c.dataEntry(cc, value)
	case 64:
		c.setSustain(value >= 64)
	case 65:
		c.portamento = value >= 64
		c.monoLast = -1
		c.lastNotes = c.lastNotes[:0]
	case 66:
		c.setSostenuto(value >= 64)
	case 84:
		c.portamentoKey = value
	case 98:
		c.nrpnSel = c.nrpnSel&(127<<7) | value
		c.rpnSel = rpnNull
	case 99:
		c.nrpnSel = c.nrpnSel&127 | value<<7
		c.rpnSel = rpnNull
	case 100:
		c.rpnSel = c.rpnSel&(127<<7) | value
		c.nrpnSel = rpnNull
	case 101:
		c.rpnSel = c.rpnSel&127 | value<<7
		c.nrpnSel = rpnNull
	case 120:
		c.AllSoundOffLocked()
		return
	case 121:
		c.resetAllControllers(value == 127)
		return
	case 122:
		return
	case 123:
		c.allNotesOff()
		return
	case 124:
		c.setOmni(false)
		return
	case 125:
		c.setOmni(true)
		return
	case 126:
		if value == 1 {
			c.setMono(true)
		}
		return
	case 127:
		c.setMono(false)
		return
	}

	c.setController(cc, value)
	switch {
	case cc == 0:
		c.bank = value << 7
	case cc == 32:
		c.bank = c.bank&(127<<7) | value
		return
	case cc < 32:
		c.setController(cc+32, 0)
	}
}

func (c *Channel) setController(cc, value int) {
	c.cc[cc] = value
	c.ctl.CC[cc] = float64(value) / 128
	c.voices(func(v *voice.Voice) { v.ControlChange(cc) })
}

// portamentoRate maps cc5 onto glide speed in semitones per control tick
// along an inverse-sine curve.
func portamentoRate(value int, controlRate float64) float64 {
	x := -math.Asin(float64(value)/128*2-1)/math.Pi + 0.5
	x = math.Pow(100000, x) / 100
	return x / 100 * 1000 / controlRate
}

func (c *Channel) setSustain(on bool) {
	if on == c.sustain {
		return
	}
	c.sustain = on
	if on {
		c.voices(func(v *voice.Voice) { v.Redamp() })
		return
	}
	c.voices(func(v *voice.Voice) { v.ReleaseSustain() })
}

func (c *Channel) setSostenuto(on bool) {
	if on == c.sostenuto {
		return
	}
	c.sostenuto = on
	if on {
		c.voices(func(v *voice.Voice) { v.LatchSostenuto() })
		return
	}
	sustain := c.sustain
	c.voices(func(v *voice.Voice) { v.ReleaseSostenuto(sustain) })
}

func (c *Channel) dataEntry(cc, value int) {
	val := 0
	if c.nrpnSel != rpnNull {
		val = c.nrpn[c.nrpnSel]
	}
	if c.rpnSel != rpnNull {
		val = c.rpn[c.rpnSel]
	}
	switch cc {
	case 6:
		val = val&127 | value<<7
	case 38:
		val = val&(127<<7) | value
	case 96, 97:
		step := 1
		if c.rpnSel == 2 || c.rpnSel == 3 || c.rpnSel == 4 {
			step = 128
		}
		if cc == 96 {
			val += step
		} else {
			val -= step
		}
	}
	val = clamp14(val)
	if c.nrpnSel != rpnNull {
		c.nrpnChange(c.nrpnSel, val)
	}
	if c.rpnSel != rpnNull {
		c.rpnChange(c.rpnSel, val)
	}
}

// SetRPN writes a 14-bit registered parameter directly.
func (c *Channel) SetRPN(n, value int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.rpnChange(clamp14(n), clamp14(value))
}

// RPN returns the 14-bit value of registered parameter n.
func (c *Channel) RPN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rpn[n]
}

// SetNRPN writes a 14-bit non-registered parameter directly.
func (c *Channel) SetNRPN(n, value int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.nrpnChange(clamp14(n), clamp14(value))
}

// NRPN returns the 14-bit value of non-registered parameter n.
func (c *Channel) NRPN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nrpn[n]
}

func (c *Channel) rpnChange(n, value int) {
	c.rpn[n] = value
	c.ctl.RPN[n] = float64(value) / 16384
	switch n {
	case 3:
		c.tuningProgram = value >> 7 & 127
		c.tuningChange()
	case 4:
		c.tuningBank = value >> 7 & 127
	}
	c.voices(func(v *voice.Voice) { v.RPNChange(n) })
}

// GM2 NRPNs mapped onto sound controllers.
var nrpnControllers = map[int]int{
	0x0108: 76, // vibrato rate
	0x0109: 77, // vibrato depth
	0x010A: 78, // vibrato delay
	0x0120: 74, // brightness
	0x0121: 71, // resonance
	0x0163: 73, // attack time
	0x0164: 75, // decay time
	0x0166: 72, // release time
}

// Per-note NRPNs, MSB to the key-based controller they set. The LSB is the key.
var nrpnKeyControllers = map[int]int{
	0x18: voice.KeyFineTuning,
	0x1A: 7,
	0x1C: 10,
	0x1D: 91,
	0x1E: 93,
}

func (c *Channel) nrpnChange(n, value int) {
	if cc, ok := nrpnControllers[n]; ok {
		c.controlChange(cc, value>>7)
	}
	if kc, ok := nrpnKeyControllers[n>>7]; ok {
		c.controlChangePerNote(n&127, kc, value>>7)
	}
	c.nrpn[n] = value
	c.ctl.NRPN[n] = float64(value) / 16384
	c.voices(func(v *voice.Voice) { v.NRPNChange(n) })
}

// ControlChangePerNote overrides controller cc for key only. A negative value
// removes the override.
func (c *Channel) ControlChangePerNote(key, cc, value int) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.controlChangePerNote(clamp7(key), clamp7(cc), min(value, 127))
}

func (c *Channel) controlChangePerNote(key, cc, value int) {
	c.ctl.SetKeyController(key, cc, value)
	c.voices(func(v *voice.Voice) {
		if v.Key != key {
			return
		}
		switch {
		case cc < voice.KeyFineTuning:
			v.ControlChange(cc)
		case cc == voice.KeyFineTuning:
			v.RPNChange(1)
		case cc == voice.KeyCoarseTuning:
			v.RPNChange(2)
		}
	})
}

func (c *Channel) tuningChange() {
	t := c.host.Tuning(c.tuningBank, c.tuningProgram)
	if t == nil {
		t = voice.EqualTemperament()
	}
	c.ctl.Tuning = t
	c.voices(func(v *voice.Voice) { v.UpdateTuning() })
}

// ResetAllControllers returns controllers to their defaults. A full reset also
// restores the registered parameters, tuning and per-note overrides.
func (c *Channel) ResetAllControllers(full bool) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.resetAllControllers(full)
}

func (c *Channel) resetAllControllers(full bool) {
	for key := range c.polyPressure {
		c.setPolyPressure(key, 0)
	}
	c.setChannelPressure(0)
	c.setPitchBend(8192)
	for cc := range c.cc {
		if !protected[cc] {
			c.setController(cc, 0)
		}
	}
	for cc := 71; cc <= 78; cc++ {
		c.setController(cc, 64)
	}
	c.setController(8, 64)
	c.setController(11, 127)
	for cc := 98; cc <= 101; cc++ {
		c.setController(cc, 127)
	}
	c.rpnSel, c.nrpnSel = rpnNull, rpnNull
	c.setSustain(false)
	c.setSostenuto(false)
	c.portamento = false
	c.portamentoKey = -1
	c.monoLast = -1
	c.lastNotes = c.lastNotes[:0]

	if !full {
		return
	}
	c.ctl.ClearKeyControllers()
	c.setController(7, 100)
	c.setController(10, 64)
	c.setController(91, 40)
	for n := range c.rpn {
		if n != 3 && n != 4 {
			c.rpnChange(n, 0)
		}
	}
	for n := range c.nrpn {
		c.nrpn[n] = 0
		c.ctl.NRPN[n] = 0
		c.voices(func(v *voice.Voice) { v.NRPNChange(n) })
	}
	c.rpnChange(0, 2<<7)
	c.rpnChange(1, 64<<7)
	c.rpnChange(2, 64<<7)
	c.rpnChange(5, 64)
	c.tuningBank, c.tuningProgram = 0, 0
	c.ctl.Tuning = voice.EqualTemperament()
	c.voices(func(v *voice.Voice) { v.UpdateTuning() })
}
