// Package envelope implements the control-rate DLS envelope generator:
// delay, attack, hold, decay, sustain, release, plus a fast shutdown used
// when a voice is stolen.
package envelope

import "math"

type Stage int

const (
	StageOff Stage = iota
	StageDelay
	StageAttack
	StageHold
	StageDecay
	StageSustain
	StageRelease
	StageShutdown
)

// Params are the resolved envelope controls for one tick. Times are in timecents,
// Sustain is in tenths of a percent (1000 = full level). On below 0.5 means the gate is
// closed; below -0.5 the envelope is shut down.
type Params struct {
	On       float64
	Delay    float64
	Attack   float64
	Hold     float64
	Decay    float64
	Sustain  float64
	Release  float64
	Shutdown float64
}

// Generator is one envelope. Out is in [0, 1] and maps linearly onto attenuation,
// so decay and release are linear in decibels.
type Generator struct {
	stage       Stage
	ix          float64
	out         float64
	controlRate float64
	// peak caps the sustain level after a release was caught.
	peak float64
}

// Reset prepares the generator for a new note at the given control rate (ticks per second).
func (g *Generator) Reset(controlRate float64) {
	g.stage = StageOff
	g.ix = 0
	g.out = 0
	g.peak = 1
	g.controlRate = controlRate
}

// Start opens the envelope from its delay stage.
func (g *Generator) Start() {
	g.stage = StageDelay
	g.ix = 0
	g.out = 0
	g.peak = 1
}

// Shutdown forces a fast ramp to silence from the current level.
func (g *Generator) Shutdown(p Params) {
	if g.stage == StageOff || g.stage == StageShutdown {
		return
	}
	g.stage = StageShutdown
	g.ix = (1 - g.out) * g.ticks(p.Shutdown)
}

func (g *Generator) Stage() Stage    { return g.stage }
func (g *Generator) Out() float64    { return g.out }
func (g *Generator) Active() bool    { return g.stage != StageOff }
func (g *Generator) Releasing() bool { return g.stage >= StageRelease }

func (g *Generator) ticks(tc float64) float64 {
	if math.IsInf(tc, -1) || math.IsNaN(tc) {
		return 0
	}
	return math.Exp2(tc/1200) * g.controlRate
}

// attackCurve maps attack progress to a level that rises linearly in amplitude
// once the level is applied as -96 dB * (1 - level).
func attackCurve(x float64) float64 {
	if x <= 0 {
		return 0
	}
	v := 1 + (200.0/960.0)*math.Log10(x)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sustainLevel(p Params) float64 {
	s := p.Sustain / 1000
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Step advances the envelope by one control tick.
func (g *Generator) Step(p Params) {
	if g.stage == StageOff {
		return
	}
	switch {
	case p.On < -0.5 && g.stage != StageShutdown:
		g.Shutdown(p)
	case p.On < 0.5 && g.stage < StageRelease:
		g.stage = StageRelease
		g.ix = (1 - g.out) * g.ticks(p.Release)
	case p.On >= 0.5 && g.stage == StageRelease:
		g.resume(p)
	}
	// Zero-length stages fall through to the next one within the same tick.
	for {
		switch g.stage {
		case StageDelay:
			if g.ix >= g.ticks(p.Delay) {
				g.enter(StageAttack)
				continue
			}
			g.ix++
			return
		case StageAttack:
			n := g.ticks(p.Attack)
			if g.ix >= n {
				g.out = 1
				g.enter(StageHold)
				continue
			}
			g.ix++
			g.out = attackCurve(g.ix / n)
			return
		case StageHold:
			if g.ix >= g.ticks(p.Hold) {
				g.enter(StageDecay)
				continue
			}
			g.ix++
			return
		case StageDecay:
			s := sustainLevel(p)
			n := g.ticks(p.Decay)
			if g.ix >= n || g.out <= s {
				g.out = s
				g.enter(StageSustain)
				continue
			}
			g.ix++
			g.out = 1 - g.ix/n
			if g.out <= s {
				g.out = s
				g.enter(StageSustain)
			}
			return
		case StageSustain:
			g.out = min(sustainLevel(p), g.peak)
			return
		case StageRelease:
			g.ramp(g.ticks(p.Release))
			return
		case StageShutdown:
			g.ramp(g.ticks(p.Shutdown))
			return
		default:
			return
		}
	}
}

// resume reopens a releasing envelope without a jump in level. Above the
// sustain level it decays from where it is; below it the level is held.
func (g *Generator) resume(p Params) {
	g.peak = g.out
	if g.out > sustainLevel(p) {
		g.stage = StageDecay
		g.ix = (1 - g.out) * g.ticks(p.Decay)
		return
	}
	g.enter(StageSustain)
}

func (g *Generator) enter(s Stage) {
	g.stage = s
	g.ix = 0
}

func (g *Generator) ramp(n float64) {
	if g.ix >= n {
		g.out = 0
		g.stage = StageOff
		return
	}
	g.ix++
	g.out = 1 - g.ix/n
	if g.out <= 0 {
		g.out = 0
		g.stage = StageOff
	}
}
