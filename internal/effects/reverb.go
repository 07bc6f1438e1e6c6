package effects

import "github.com/viterin/vek/vek32"

// stereoSpread offsets the right-hand delay lines so the tail decorrelates.
const stereoSpread = 23

// silenceFloor is the peak level below which a send effect's tail is dropped.
const silenceFloor = 1e-6

// Reverb is a Schroeder reverb: four damped comb filters and two allpass
// filters per side. As a send stage it reads a mono bus and adds the wet
// signal to the stereo output; as an insert it mixes with the dry frame.
type Reverb struct {
	combL, combR [4]combFilter
	apL, apR     [2]allpassFilter
	wet          float32
	dormant      bool
	quiet, span  int
}

type combFilter struct {
	buf   []float32
	pos   int
	fb    float32
	damp  float32
	store float32
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

// NewReverb creates a reverb. roomSize in [0, 1] scales the delay lengths,
// feedback in [0, 0.95] sets the decay time.
func NewReverb(sampleRate int, roomSize, feedback float32) *Reverb {
	base := max(int(float32(sampleRate)*roomSize*0.05), 10)
	fb := clamp(feedback, 0, 0.95)
	r := &Reverb{wet: 1, dormant: true}
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i, n := range combLens {
		r.combL[i] = combFilter{buf: make([]float32, n), fb: fb, damp: 0.2}
		r.combR[i] = combFilter{buf: make([]float32, n+stereoSpread), fb: fb, damp: 0.2}
	}
	apLens := [2]int{max(base*347/1000, 1), max(base*213/1000, 1)}
	for i, n := range apLens {
		r.apL[i] = allpassFilter{buf: make([]float32, n), fb: 0.5}
		r.apR[i] = allpassFilter{buf: make([]float32, n+stereoSpread), fb: 0.5}
	}
	r.span = combLens[3] + apLens[0] + apLens[1] + 3*stereoSpread
	return r
}

// SetWet sets the wet level of the insert form.
func (r *Reverb) SetWet(wet float32) { r.wet = clamp(wet, 0, 1) }

func (r *Reverb) tick(in float32) (float32, float32) {
	var l, rr float32
	for i := range r.combL {
		l += r.combL[i].process(in)
		rr += r.combR[i].process(in)
	}
	l *= 0.25
	rr *= 0.25
	for i := range r.apL {
		l = r.apL[i].process(l)
		rr = r.apR[i].process(rr)
	}
	return l, rr
}

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	wl, wr := r.tick((l + rr) * 0.5)
	return l*(1-r.wet) + wl*r.wet, rr*(1-r.wet) + wr*r.wet
}

// Send adds the reverb of the mono bus in to outL and outR.
func (r *Reverb) Send(in, outL, outR []float32) {
	silentIn := peak(in) < silenceFloor
	if silentIn && r.dormant {
		return
	}
	var tail float32
	for i, x := range in {
		wl, wr := r.tick(x)
		outL[i] += wl
		outR[i] += wr
		tail = max(tail, abs32(wl), abs32(wr))
	}
	if silentIn && tail < silenceFloor {
		// Dormant once the output has been quiet for longer than the delay lines.
		if r.quiet += len(in); r.quiet > r.span {
			r.Reset()
		}
		return
	}
	r.quiet = 0
	r.dormant = false
}

// Dormant reports whether the tail has died out.
func (r *Reverb) Dormant() bool { return r.dormant }

func (r *Reverb) Reset() {
	for i := range r.combL {
		r.combL[i].reset()
		r.combR[i].reset()
	}
	for i := range r.apL {
		r.apL[i].reset()
		r.apR[i].reset()
	}
	r.dormant = true
	r.quiet = 0
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (c *combFilter) reset() {
	clear(c.buf)
	c.pos = 0
	c.store = 0
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

func (a *allpassFilter) reset() {
	clear(a.buf)
	a.pos = 0
}

// peak returns the largest magnitude in buf.
func peak(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	return max(vek32.Max(buf), -vek32.Min(buf))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
