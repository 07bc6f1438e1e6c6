package bank

import (
	"math"
	"math/rand/v2"

	"github.com/cbegin/softsynth-go/internal/model"
)

// Waveform names accepted by Builtin.
const (
	WaveSine     = "sine"
	WaveTriangle = "triangle"
	WaveSaw      = "saw"
	WaveSquare   = "square"
	WaveNoise    = "noise"
)

const (
	cycleLen = 256
	noiseLen = 8192
	// cycleRoot is the key whose pitch one table cycle produces (A4).
	cycleRoot = 69
)

// Builtin returns a looping single-cycle (or noise) wavetable, or nil for an
// unknown name. Each call returns a fresh table.
func Builtin(name string) *model.Wavetable {
	if name == WaveNoise {
		rng := rand.New(rand.NewPCG(1, 2))
		data := make([]float32, noiseLen)
		for i := range data {
			data[i] = float32(rng.Float64()*2-1) * 0.5
		}
		w := model.NewWavetable(data, 44100)
		w.LoopType = model.LoopForward
		w.LoopLength = noiseLen
		w.SetRootKey(60, 0)
		return w
	}
	var fn func(phase float64) float64
	switch name {
	case WaveSine:
		fn = math.Sin
	case WaveTriangle:
		fn = func(p float64) float64 { return 2 / math.Pi * math.Asin(math.Sin(p)) }
	case WaveSaw:
		fn = func(p float64) float64 { return p/math.Pi - 1 }
	case WaveSquare:
		fn = func(p float64) float64 {
			if p < math.Pi {
				return 1
			}
			return -1
		}
	default:
		return nil
	}
	data := make([]float32, cycleLen)
	for i := range data {
		data[i] = float32(fn(2*math.Pi*float64(i)/cycleLen) * 0.5)
	}
	// One cycle per cycleLen samples sounds at 440 Hz.
	w := model.NewWavetable(data, 440*cycleLen)
	w.LoopType = model.LoopForward
	w.LoopLength = cycleLen
	w.SetRootKey(cycleRoot, 0)
	return w
}

func eg(variable, instance int) model.Identifier {
	return model.ID(model.ObjEG, variable, instance)
}

// envelope returns constant connection blocks for volume envelope stages in
// timecents; sustain is in 0.1 % units.
func envelope(attack, decay, sustain, release float64) []model.ConnectionBlock {
	return []model.ConnectionBlock{
		model.Const(attack, eg(model.EGAttack, 0)),
		model.Const(decay, eg(model.EGDecay, 0)),
		model.Const(sustain, eg(model.EGSustain, 0)),
		model.Const(release, eg(model.EGRelease, 0)),
	}
}

// timecents converts seconds.
func timecents(sec float64) float64 { return 1200 * math.Log2(sec) }

// Default returns a small GM-style bank built from synthetic waveforms, so
// the synthesizer can play without any files.
func Default() *Bank {
	melodic := func(program int, name, wave string, attack, decay, sustain, release float64) *model.Instrument {
		p := model.NewPerformer(Builtin(wave))
		p.Name = name
		p.Connections = envelope(timecents(attack), timecents(decay), sustain, timecents(release))
		return &model.Instrument{Name: name, Program: program, Performers: []*model.Performer{p}}
	}
	b := &Bank{
		Name: "builtin",
		Instruments: []*model.Instrument{
			melodic(0, "Sine Piano", WaveSine, 0.002, 1.5, 300, 0.3),
			melodic(16, "Square Organ", WaveSquare, 0.005, 0.1, 900, 0.08),
			melodic(19, "Triangle Organ", WaveTriangle, 0.01, 0.2, 800, 0.2),
			melodic(38, "Saw Bass", WaveSaw, 0.002, 0.6, 400, 0.1),
			melodic(81, "Saw Lead", WaveSaw, 0.01, 0.3, 700, 0.2),
		},
	}
	b.Instruments = append(b.Instruments, drumKit())
	return b
}

// drumKit is the percussion instrument at program 0. Hi-hats share exclusive
// class 1 so an open hat is cut by a closed one.
func drumKit() *model.Instrument {
	ins := &model.Instrument{Name: "Noise Kit", Percussion: true}
	add := func(name string, from, to int, wave string, decay float64, class int) {
		p := model.NewPerformer(Builtin(wave))
		p.Name = name
		p.KeyFrom, p.KeyTo = from, to
		p.ExclusiveClass = class
		pitch := 6000.0
		if wave != WaveNoise {
			pitch = 3600
		}
		p.Connections = append(envelope(timecents(0.001), timecents(decay), 0, timecents(decay)),
			// Replaces key tracking: drums sound at a fixed pitch on every key.
			model.Connect(0, model.DestPitch, model.Source{ID: model.SrcKeynumber}),
			model.Const(pitch, model.DestPitch),
		)
		ins.Performers = append(ins.Performers, p)
	}
	add("Kick", 35, 36, WaveSine, 0.25, 0)
	add("Snare", 37, 40, WaveNoise, 0.18, 0)
	add("Closed Hat", 42, 42, WaveNoise, 0.05, 1)
	add("Pedal Hat", 44, 44, WaveNoise, 0.07, 1)
	add("Open Hat", 46, 46, WaveNoise, 0.4, 1)
	add("Cymbal", 49, 57, WaveNoise, 1.2, 0)
	return ins
}
