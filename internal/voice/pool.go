package voice

// Policy selects how a voice is stolen when the pool is full.
type Policy int

const (
	// AllocDefault steals the oldest released voice, then the oldest voice.
	AllocDefault Policy = iota
	// AllocDLS prefers voices on the highest-numbered channel above the requesting
	// one, never the percussion channel unless the request comes from it.
	AllocDLS
)

// percussionChannel is MIDI channel 10.
const percussionChannel = 9

// Pool is the fixed set of voices shared by all channels. Every method except
// Render runs under the control mutex. Render reads only what the last Tick
// handed over, so the mixer calls it after releasing the mutex.
type Pool struct {
	voices []Voice
	policy Policy
	nextID int64
}

// NewPool allocates n voices rendering at sampleRate with controlRate ticks per second.
func NewPool(n int, policy Policy, sampleRate, controlRate float64) *Pool {
	p := &Pool{voices: make([]Voice, n), policy: policy}
	frames := int(sampleRate / controlRate)
	for i := range p.voices {
		v := &p.voices[i]
		v.sampleRate = sampleRate
		v.controlRate = controlRate
		v.out.buf = make([]float32, frames)
		v.out.scratch = make([]float32, frames)
	}
	return p
}

// Voices exposes the slots for inspection and per-voice notifications.
func (p *Pool) Voices() []Voice { return p.voices }

// Len returns the polyphony.
func (p *Pool) Len() int { return len(p.voices) }

// NextID returns a fresh note identifier. Performers of one note share it.
func (p *Pool) NextID() int64 {
	p.nextID++
	return p.nextID
}

// FindFree returns a free slot at or after from, or a voice to steal for a
// request on channel. It returns -1 only for an empty pool.
func (p *Pool) FindFree(from, channel int) int {
	for i := from; i < len(p.voices); i++ {
		if p.voices[i].State == StateFree {
			return i
		}
	}
	if p.policy == AllocDLS {
		if ix := p.stealDLS(channel); ix >= 0 {
			return ix
		}
	}
	return p.stealOldest(func(*Voice) bool { return true })
}

// stealable voices are sounding and have no replacement queued yet.
func stealable(v *Voice) bool {
	return v.State == StateActive || (v.State == StateStealing && !v.hasPending)
}

func (p *Pool) stealOldest(match func(*Voice) bool) int {
	best, bestOn := -1, -1
	for i := range p.voices {
		v := &p.voices[i]
		if !stealable(v) || !match(v) {
			continue
		}
		if !v.On {
			if best < 0 || v.ID < p.voices[best].ID {
				best = i
			}
		} else if bestOn < 0 || v.ID < p.voices[bestOn].ID {
			bestOn = i
		}
	}
	if best >= 0 {
		return best
	}
	return bestOn
}

func (p *Pool) stealDLS(channel int) int {
	steal := channel
	for i := range p.voices {
		v := &p.voices[i]
		if !stealable(v) {
			continue
		}
		if steal == percussionChannel {
			steal = v.Channel
		} else if v.Channel != percussionChannel && v.Channel > steal {
			steal = v.Channel
		}
	}
	return p.stealOldest(func(v *Voice) bool { return v.Channel == steal })
}

// Play starts n on slot ix. If the slot is sounding the note is queued behind a
// fast sound-off of every voice belonging to the same note.
func (p *Pool) Play(ix int, n Note) {
	if ix < 0 || ix >= len(p.voices) {
		return
	}
	v := &p.voices[ix]
	switch v.State {
	case StateFree:
		v.start(n)
	case StateQueued:
		v.pending = n
	default:
		id := v.ID
		v.queue(n)
		for i := range p.voices {
			if w := &p.voices[i]; w.ID == id && w.playing() {
				w.SoundOff()
			}
		}
	}
}

// CancelPending drops queued notes for key on channel; their note-off arrived
// before they could start.
func (p *Pool) CancelPending(channel, key int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.hasPending && v.pending.Channel == channel && v.pending.Key == key {
			v.cancel()
		}
	}
}

// Tick runs the control logic of every voice, starts queued notes whose
// slot has fallen silent and hands the result to the renderers.
func (p *Pool) Tick() {
	for i := range p.voices {
		v := &p.voices[i]
		v.ControlLogic()
		if v.State == StateQueued {
			n := v.pending
			v.pending, v.hasPending = Note{}, false
			v.State = StateFree
			n.Delay = 0
			v.start(n)
			v.ControlLogic()
		}
		v.commit()
	}
}

// Render mixes every voice into b as of the last Tick.
func (p *Pool) Render(b *Buffers) {
	for i := range p.voices {
		p.voices[i].out.render(b)
	}
}

// Clear frees every slot and drops queued notes.
func (p *Pool) Clear() {
	for i := range p.voices {
		v := &p.voices[i]
		v.cancel()
		v.free()
		v.soundOff = false
	}
}

// Active returns the number of slots not free.
func (p *Pool) Active() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].State != StateFree {
			n++
		}
	}
	return n
}

// ActiveByChannel counts the slots not free on each of the first len(dst)
// channels.
func (p *Pool) ActiveByChannel(dst []int) {
	clear(dst)
	for i := range p.voices {
		v := &p.voices[i]
		if v.State != StateFree && v.Channel >= 0 && v.Channel < len(dst) {
			dst[v.Channel]++
		}
	}
}
