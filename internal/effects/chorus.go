package effects

import "math"

// Chorus is a modulated stereo delay. The two sides read the line with LFOs a
// quarter cycle apart. As a send stage it reads a mono bus, adds to the stereo
// output and feeds part of its output to the reverb bus.
type Chorus struct {
	bufL, bufR []float32
	pos        int
	size       int
	depth      float32 // modulation depth in samples
	rate       float64 // modulation rate in radians per sample
	phase      float64
	feedback   float32
	wet        float32
	reverbSend float32
	dormant    bool
	quiet      int
}

// NewChorus creates a chorus. delayMs is the centre delay, depthMs the
// modulation depth and rateHz the modulation rate.
func NewChorus(sampleRate int, delayMs, feedback, depthMs, rateHz float32) *Chorus {
	baseSamples := int(float64(delayMs) * float64(sampleRate) / 1000)
	depthSamples := float64(depthMs) * float64(sampleRate) / 1000
	size := max(2*(baseSamples+int(depthSamples))+2, 4)
	return &Chorus{
		bufL:     make([]float32, size),
		bufR:     make([]float32, size),
		size:     size,
		depth:    float32(depthSamples),
		rate:     2 * math.Pi * float64(rateHz) / float64(sampleRate),
		feedback: clamp(feedback, 0, 0.9),
		wet:      1,
		dormant:  true,
	}
}

// SetWet sets the wet level of the insert form.
func (c *Chorus) SetWet(wet float32) { c.wet = clamp(wet, 0, 1) }

// SetReverbSend sets how much of the send output reaches the reverb bus.
func (c *Chorus) SetReverbSend(level float32) { c.reverbSend = clamp(level, 0, 1) }

func (c *Chorus) read(buf []float32, delay float32) float32 {
	readPos := float32(c.pos) - delay
	for readPos < 0 {
		readPos += float32(c.size)
	}
	idx := int(readPos)
	frac := readPos - float32(idx)
	idx2 := idx + 1
	if idx2 >= c.size {
		idx2 = 0
	}
	return buf[idx]*(1-frac) + buf[idx2]*frac
}

func (c *Chorus) tick(l, r float32) (float32, float32) {
	centre := float32(c.size/2 - 1)
	modL := float32(math.Sin(c.phase)) * c.depth
	modR := float32(math.Cos(c.phase)) * c.depth
	c.phase += c.rate
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r
	dl := c.read(c.bufL, centre+modL)
	dr := c.read(c.bufR, centre+modR)
	c.bufL[c.pos] += dl * c.feedback
	c.bufR[c.pos] += dr * c.feedback
	c.pos++
	if c.pos >= c.size {
		c.pos = 0
	}
	return dl, dr
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	dl, dr := c.tick(l, r)
	return l*(1-c.wet) + dl*c.wet, r*(1-c.wet) + dr*c.wet
}

// Send adds the chorus of the mono bus in to outL and outR, and a share of it
// to reverb.
func (c *Chorus) Send(in, outL, outR, reverb []float32) {
	silentIn := peak(in) < silenceFloor
	if silentIn && c.dormant {
		return
	}
	var tail float32
	for i, x := range in {
		dl, dr := c.tick(x, x)
		outL[i] += dl
		outR[i] += dr
		if c.reverbSend > 0 {
			reverb[i] += (dl + dr) * 0.5 * c.reverbSend
		}
		tail = max(tail, abs32(dl), abs32(dr))
	}
	if silentIn && tail < silenceFloor {
		if c.quiet += len(in); c.quiet > c.size {
			c.Reset()
		}
		return
	}
	c.quiet = 0
	c.dormant = false
}

// Dormant reports whether the delay line has emptied.
func (c *Chorus) Dormant() bool { return c.dormant }

func (c *Chorus) Reset() {
	clear(c.bufL)
	clear(c.bufR)
	c.pos = 0
	c.phase = 0
	c.dormant = true
	c.quiet = 0
}
