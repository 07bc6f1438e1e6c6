package voice

import (
	"io"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/softsynth-go/internal/resampler"
)

// output is the rendering half of a voice. Only the audio goroutine touches
// it: commit fills it during Pool.Tick and render runs from Pool.Render
// without the control mutex.
type output struct {
	osc     resampler.Stream
	filter  lowpass
	buf     []float32
	scratch []float32
	delay   int

	live bool
	end  bool
	// done is set once the voice has nothing left to play. The next tick
	// frees the slot.
	done bool

	gainL, gainR, send1, send2 float32
	lastL, lastR, last1, last2 float32
}

// commit hands the parameters resolved since the last tick to the renderer.
func (v *Voice) commit() {
	o := &v.out
	if v.reopen {
		v.reopen = false
		o.filter.reset(v.sampleRate)
		if v.wave != nil {
			o.osc.Open(v.wave, v.sampleRate)
		}
		o.done = false
		o.delay = v.delay
		o.lastL, o.lastR, o.last1, o.last2 = v.gainL, v.gainR, v.send1, v.send2
	}
	if v.oscOff {
		v.oscOff = false
		o.osc.NoteOff()
	}
	o.live = v.playing() && v.started && !v.stopping
	if !o.live {
		return
	}
	o.osc.SetPitch(v.pitch)
	o.filter.set(v.cutoff, v.resonance)
	o.gainL, o.gainR, o.send1, o.send2 = v.gainL, v.gainR, v.send1, v.send2
	o.end = v.end
}

// render mixes one tick of audio into b.
func (o *output) render(b *Buffers) {
	if !o.live || o.done {
		return
	}
	n := len(b.Left)
	buf := o.buf[:n]
	got, err := o.osc.Read(buf)
	if got == 0 && err != nil {
		o.done = true
		return
	}
	if got < n {
		clear(buf[got:])
	}
	o.filter.process(buf)

	if o.lastL == o.lastR && o.gainL == o.gainR {
		o.mix(buf, b.Mono, b.DelayMono, o.lastL, o.gainL)
	} else {
		o.mix(buf, b.Left, b.DelayLeft, o.lastL, o.gainL)
		o.mix(buf, b.Right, b.DelayRight, o.lastR, o.gainR)
	}
	o.mix(buf, b.Effect1, b.DelayEffect1, o.last1, o.send1)
	o.mix(buf, b.Effect2, b.DelayEffect2, o.last2, o.send2)
	o.lastL, o.lastR, o.last1, o.last2 = o.gainL, o.gainR, o.send1, o.send2

	if o.end || err == io.EOF {
		o.done = true
	}
}

// mix adds in to out with a gain ramping linearly from -> to. The last delay
// frames land at the start of dout.
func (o *output) mix(in, out, dout []float32, from, to float32) {
	n := len(in)
	d := o.delay
	if from == to {
		if to == 0 {
			return
		}
		tmp := o.scratch[:n]
		vek32.MulNumber_Into(tmp, in, to)
		vek32.Add_Inplace(out[d:], tmp[:n-d])
		if d > 0 {
			vek32.Add_Inplace(dout[:d], tmp[n-d:])
		}
		return
	}
	step := (to - from) / float32(n)
	amp := from
	for i, s := range in {
		amp += step
		if j := i + d; j < n {
			out[j] += s * amp
		} else {
			dout[j-n] += s * amp
		}
	}
}
