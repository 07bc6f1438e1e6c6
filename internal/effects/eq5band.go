package effects

import (
	"math"
	"sync/atomic"
)

// EQBands is the number of master EQ bands.
const EQBands = 5

// Crossovers between the master EQ bands, in Hz.
var Crossovers = [EQBands - 1]float64{200, 800, 2500, 8000}

// EQ5Band is the master equaliser. Gains are stored as float32 bit patterns
// so the control side can change them without taking the audio lock.
type EQ5Band struct {
	gains  [EQBands]atomic.Uint32
	alphas [EQBands - 1]float32
	lpL    [EQBands - 1]float32
	lpR    [EQBands - 1]float32
}

// NewEQ5Band creates a flat EQ.
func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1 / float64(sampleRate)
	for i, hz := range Crossovers {
		rc := 1 / (2 * math.Pi * hz)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets the linear gain of band; 1 is unity.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band >= 0 && band < EQBands {
		eq.gains[band].Store(math.Float32bits(max(gain, 0)))
	}
}

// SetGainDB sets the gain of band in decibels.
func (eq *EQ5Band) SetGainDB(band int, db float64) {
	eq.SetGain(band, float32(math.Pow(10, db/20)))
}

// Gain returns the linear gain of band.
func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < EQBands {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1
}

// Flat reports whether every band is at unity.
func (eq *EQ5Band) Flat() bool {
	for i := range eq.gains {
		if math.Float32frombits(eq.gains[i].Load()) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) split(x float32, lp *[EQBands - 1]float32, g *[EQBands]float32) float32 {
	var out float32
	for i := range lp {
		lp[i] += eq.alphas[i] * (x - lp[i])
		out += lp[i] * g[i]
		x -= lp[i]
	}
	return out + x*g[EQBands-1]
}

func (eq *EQ5Band) loadGains() (g [EQBands]float32) {
	for i := range g {
		g[i] = math.Float32frombits(eq.gains[i].Load())
	}
	return g
}

func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	g := eq.loadGains()
	return eq.split(l, &eq.lpL, &g), eq.split(r, &eq.lpR, &g)
}

// ProcessBlock equalises a stereo block in place. A flat EQ leaves it untouched.
func (eq *EQ5Band) ProcessBlock(left, right []float32) {
	if eq.Flat() {
		return
	}
	g := eq.loadGains()
	for i := range left {
		left[i] = eq.split(left[i], &eq.lpL, &g)
		right[i] = eq.split(right[i], &eq.lpR, &g)
	}
}

func (eq *EQ5Band) Reset() {
	eq.lpL = [EQBands - 1]float32{}
	eq.lpR = [EQBands - 1]float32{}
}
