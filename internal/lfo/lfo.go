package lfo

import "math"

// Waveform constants.
const (
	WaveSine     = 0
	WaveSaw      = 1
	WaveSquare   = 2
	WaveTriangle = 3
	WaveRandom   = 4
)

// LFO is a per-voice low-frequency oscillator advanced once per control tick.
// Its output is unipolar in [0, 1]; connection transforms make it bipolar.
type LFO struct {
	controlRate float64
	waveform    int     // 0=sine, 1=saw, 2=square, 3=triangle, 4=random
	phase       float64 // current phase [0, 1)
	randVal     float64 // held random value for sample-and-hold
	delay       float64 // elapsed ticks
	out         float64
}

// Reset zeros the phase and delay counter and sets the control rate in ticks per second.
func (l *LFO) Reset(controlRate float64) {
	l.controlRate = controlRate
	l.phase = 0
	l.randVal = 0
	l.delay = 0
	l.out = 0.5
}

// SetWaveform selects the waveform; unknown values fall back to sine.
func (l *LFO) SetWaveform(waveform int) {
	if waveform < WaveSine || waveform > WaveRandom {
		waveform = WaveSine
	}
	l.waveform = waveform
}

// Hz converts absolute cents (6900 = 440 Hz) to a frequency.
func Hz(cents float64) float64 {
	return 440 * math.Exp2((cents-6900)/1200)
}

// Step advances the LFO by one tick. delay is in timecents, freq in absolute cents.
// The output stays at the midpoint until the delay has elapsed.
func (l *LFO) Step(delay, freq float64) float64 {
	if l.controlRate <= 0 {
		return l.out
	}
	if !math.IsInf(delay, -1) {
		if l.delay < math.Exp2(delay/1200)*l.controlRate {
			l.delay++
			l.out = 0.5
			return l.out
		}
	}

	var waveVal float64
	switch l.waveform {
	case WaveSaw:
		waveVal = 1.0 - 2.0*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			waveVal = 1.0
		} else {
			waveVal = -1.0
		}
	case WaveTriangle:
		if l.phase < 0.5 {
			waveVal = 4.0*l.phase - 1.0
		} else {
			waveVal = 3.0 - 4.0*l.phase
		}
	case WaveRandom:
		waveVal = l.randVal
	default:
		waveVal = math.Sin(2 * math.Pi * l.phase)
	}

	oldPhase := l.phase
	l.phase += Hz(freq) / l.controlRate
	for l.phase >= 1.0 {
		l.phase -= 1.0
	}

	// For random waveform, update held value at each cycle boundary
	if l.waveform == WaveRandom && l.phase < oldPhase {
		l.randVal = math.Sin(l.phase*12345.6789+l.randVal*67890.1234) * 2.0
		l.randVal -= math.Floor(l.randVal)
		l.randVal = l.randVal*2.0 - 1.0
	}

	l.out = 0.5 + 0.5*waveVal
	return l.out
}

// Out returns the value produced by the last Step.
func (l *LFO) Out() float64 { return l.out }
