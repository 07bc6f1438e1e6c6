package voice

import "math"

// bypassCents is the cutoff (about 19.9 kHz) at and above which the filter is off.
const bypassCents = 13500

// lowpass is a resonant 12 dB/octave biquad, direct form I, with coefficients
// recomputed only when cutoff or resonance change.
type lowpass struct {
	sampleRate float64
	cutoff     float64
	q          float64
	bypass     bool

	b0, b1, b2 float32
	a1, a2     float32
	x1, x2     float32
	y1, y2     float32
}

func (f *lowpass) reset(sampleRate float64) {
	*f = lowpass{sampleRate: sampleRate, cutoff: math.NaN(), bypass: true}
}

// set takes the cutoff in absolute cents and the resonance in centibels.
func (f *lowpass) set(cents, resonance float64) {
	if cents == f.cutoff && resonance == f.q {
		return
	}
	f.cutoff, f.q = cents, resonance
	hz := 440 * math.Exp2((cents-6900)/1200)
	if cents >= bypassCents || hz >= f.sampleRate*0.45 {
		f.bypass = true
		return
	}
	if hz < 10 {
		hz = 10
	}
	q := math.Pow(10, resonance/200)
	if q < 0.5 {
		q = 0.5
	}
	w := 2 * math.Pi * hz / f.sampleRate
	sin, cos := math.Sincos(w)
	alpha := sin / (2 * q)
	a0 := 1 + alpha
	f.b0 = float32((1 - cos) / 2 / a0)
	f.b1 = float32((1 - cos) / a0)
	f.b2 = f.b0
	f.a1 = float32(-2 * cos / a0)
	f.a2 = float32((1 - alpha) / a0)
	if f.bypass {
		f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
	}
	f.bypass = false
}

func (f *lowpass) process(buf []float32) {
	if f.bypass {
		return
	}
	x1, x2, y1, y2 := f.x1, f.x2, f.y1, f.y2
	for i, x0 := range buf {
		y0 := f.b0*x0 + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, x0
		y2, y1 = y1, y0
		buf[i] = y0
	}
	f.x1, f.x2, f.y1, f.y2 = x1, x2, y1, y2
}
