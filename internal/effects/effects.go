// Package effects holds the shared send effects run once per control tick
// (reverb, chorus, limiter) and the per-frame insert effects applied to the
// master output.
package effects

import (
	"errors"
	"fmt"
	"strings"
)

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of insert effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBlock runs the chain in place over a stereo block.
func (c *Chain) ProcessBlock(left, right []float32) {
	if len(c.effects) == 0 {
		return
	}
	for i := range left {
		left[i], right[i] = c.Process(left[i], right[i])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

// Spec names an insert effect and its parameters.
type Spec struct {
	Name   string             `yaml:"name" json:"name"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

var ErrUnknownEffect = errors.New("unknown effect")

type params map[string]float64

func (p params) get(name string, def float64) float32 {
	if v, ok := p[name]; ok {
		return float32(v)
	}
	return float32(def)
}

// Build constructs an insert chain from specs. Names are case-insensitive:
// delay, distortion, compressor, eq, reverb, chorus.
func Build(sampleRate int, specs []Spec) (*Chain, error) {
	c := NewChain()
	for _, s := range specs {
		p := params(s.Params)
		switch strings.ToLower(s.Name) {
		case "delay":
			c.Add(NewDelay(sampleRate, float64(p.get("time_ms", 250)), p.get("feedback", 0.35), p.get("cross", 0.2), p.get("wet", 0.3)))
		case "distortion":
			c.Add(NewDistortion(sampleRate, p.get("drive", 4), p.get("level", 0.5), p.get("tone_hz", 6000)))
		case "compressor":
			c.Add(NewCompressor(sampleRate, p.get("threshold_db", -18), p.get("ratio", 4), p.get("attack_ms", 5), p.get("release_ms", 120), p.get("makeup_db", 3)))
		case "eq":
			c.Add(NewEQ3Band(sampleRate, p.get("low", 1), p.get("mid", 1), p.get("high", 1), p.get("low_hz", 300), p.get("high_hz", 3000)))
		case "reverb":
			r := NewReverb(sampleRate, p.get("room", 0.6), p.get("feedback", 0.8))
			r.SetWet(p.get("wet", 0.25))
			c.Add(r)
		case "chorus":
			ch := NewChorus(sampleRate, p.get("delay_ms", 12), p.get("feedback", 0.2), p.get("depth_ms", 3), p.get("rate_hz", 0.8))
			ch.SetWet(p.get("wet", 0.4))
			c.Add(ch)
		default:
			return nil, fmt.Errorf("insert effect %q: %w", s.Name, ErrUnknownEffect)
		}
	}
	return c, nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
