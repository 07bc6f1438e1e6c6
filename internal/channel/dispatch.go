package channel

import (
	"gitlab.com/gomidi/midi/v2"
)

// Handle applies a channel voice message addressed to this channel.
func (c *Channel) Handle(msg midi.Message) {
	if !c.lockOpen() {
		return
	}
	defer c.mu.Unlock()
	c.HandleLocked(msg)
}

// HandleLocked is Handle for callers already holding the control mutex.
// It reports whether msg was a channel voice message it understood.
func (c *Channel) HandleLocked(msg midi.Message) bool {
	var ch, key, vel, cc, val, prog, pressure uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		c.noteOn(int(key), int(vel))
	case msg.GetNoteOff(&ch, &key, &vel):
		c.noteOff(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		c.noteOff(int(key), 64)
	case msg.GetControlChange(&ch, &cc, &val):
		c.controlChange(int(cc), int(val))
	case msg.GetProgramChange(&ch, &prog):
		c.programChange(c.bank, int(prog))
	case msg.GetPitchBend(&ch, &rel, &abs):
		c.setPitchBend(int(abs))
	case msg.GetAfterTouch(&ch, &pressure):
		c.setChannelPressure(int(pressure))
	case msg.GetPolyAfterTouch(&ch, &key, &pressure):
		c.setPolyPressure(int(key), int(pressure))
	default:
		return false
	}
	return true
}
