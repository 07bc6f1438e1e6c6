package effects

import "math"

// Delay is a stereo echo with feedback and cross-feed between the sides.
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	wet        float32
}

func NewDelay(sampleRate int, delayMs float64, feedback, cross, wet float32) *Delay {
	n := max(int(delayMs*float64(sampleRate)/1000), 1)
	return &Delay{
		bufL:     make([]float32, n),
		bufR:     make([]float32, n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	dl, dr := d.bufL[d.pos], d.bufR[d.pos]
	straight, crossed := d.feedback*(1-d.cross), d.feedback*d.cross
	d.bufL[d.pos] = l + dl*straight + dr*crossed
	d.bufR[d.pos] = r + dr*straight + dl*crossed
	if d.pos++; d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return l*(1-d.wet) + dl*d.wet, r*(1-d.wet) + dr*d.wet
}

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}

// onePole is a first-order lowpass.
type onePole struct {
	alpha float32
	y     float32
}

func newOnePole(sampleRate int, hz float32) onePole {
	if hz <= 0 || hz >= float32(sampleRate)/2 {
		return onePole{}
	}
	rc := 1 / (2 * math.Pi * float64(hz))
	dt := 1 / float64(sampleRate)
	return onePole{alpha: float32(dt / (rc + dt))}
}

func (f *onePole) process(x float32) float32 {
	if f.alpha == 0 {
		return x
	}
	f.y += f.alpha * (x - f.y)
	return f.y
}

// Distortion is tanh waveshaping with a tone lowpass after it.
type Distortion struct {
	drive, level float32
	toneL, toneR onePole
}

// NewDistortion creates a distortion. toneHz 0 disables the tone filter.
func NewDistortion(sampleRate int, drive, level, toneHz float32) *Distortion {
	return &Distortion{
		drive: drive,
		level: level,
		toneL: newOnePole(sampleRate, toneHz),
		toneR: newOnePole(sampleRate, toneHz),
	}
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l*d.drive))) * d.level
	r = float32(math.Tanh(float64(r*d.drive))) * d.level
	return d.toneL.process(l), d.toneR.process(r)
}

func (d *Distortion) Reset() {
	d.toneL.y, d.toneR.y = 0, 0
}

// Compressor is a stereo-linked feed-forward compressor working in decibels.
type Compressor struct {
	thresholdDB float32
	ratio       float32
	attack      float32
	release     float32
	makeup      float32
	env         float32
}

func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	coeff := func(ms float32) float32 {
		return float32(1 - math.Exp(-1/(float64(ms)*float64(sampleRate)/1000)))
	}
	return &Compressor{
		thresholdDB: thresholdDB,
		ratio:       max(ratio, 1),
		attack:      coeff(attackMs),
		release:     coeff(releaseMs),
		makeup:      float32(math.Pow(10, float64(makeupDB)/20)),
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	level := max(abs32(l), abs32(r))
	if level > c.env {
		c.env += c.attack * (level - c.env)
	} else {
		c.env += c.release * (level - c.env)
	}
	g := c.makeup
	if c.env > 0 {
		over := 20*float32(math.Log10(float64(c.env))) - c.thresholdDB
		if over > 0 {
			g *= float32(math.Pow(10, float64(-over*(1-1/c.ratio))/20))
		}
	}
	return l * g, r * g
}

func (c *Compressor) Reset() { c.env = 0 }

// EQ3Band splits the signal at two crossovers and scales the bands.
type EQ3Band struct {
	lowGain, midGain, highGain float32
	lowL, lowR                 onePole
	highL, highR               onePole
}

func NewEQ3Band(sampleRate int, lowGain, midGain, highGain, lowFreq, highFreq float32) *EQ3Band {
	return &EQ3Band{
		lowGain:  lowGain,
		midGain:  midGain,
		highGain: highGain,
		lowL:     newOnePole(sampleRate, lowFreq),
		lowR:     newOnePole(sampleRate, lowFreq),
		highL:    newOnePole(sampleRate, highFreq),
		highR:    newOnePole(sampleRate, highFreq),
	}
}

func (eq *EQ3Band) band(x float32, low, high *onePole) float32 {
	lo := low.process(x)
	hi := x - high.process(x)
	return lo*eq.lowGain + (x-lo-hi)*eq.midGain + hi*eq.highGain
}

func (eq *EQ3Band) Process(l, r float32) (float32, float32) {
	return eq.band(l, &eq.lowL, &eq.highL), eq.band(r, &eq.lowR, &eq.highR)
}

func (eq *EQ3Band) Reset() {
	eq.lowL.y, eq.lowR.y, eq.highL.y, eq.highR.y = 0, 0, 0, 0
}
