// Package bank loads instrument banks. A bank description is a YAML or JSON
// document listing instruments, their performers and the WAV files or
// built-in waveforms they play. SoundFont 2 files load directly. Any error
// aborts the whole load.
package bank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/softsynth-go/internal/model"
)

// ErrMalformed marks structurally invalid bank data.
var ErrMalformed = errors.New("malformed bank")

// Bank is a decoded set of instruments.
type Bank struct {
	Name        string
	Instruments []*model.Instrument
}

// Description is the document form of a bank.
type Description struct {
	Name        string                  `yaml:"name" json:"name"`
	Instruments []InstrumentDescription `yaml:"instruments" json:"instruments"`
}

type InstrumentDescription struct {
	Name       string                 `yaml:"name" json:"name"`
	Bank       int                    `yaml:"bank" json:"bank"`
	BankMSB    *int                   `yaml:"bank_msb,omitempty" json:"bank_msb,omitempty"`
	BankLSB    *int                   `yaml:"bank_lsb,omitempty" json:"bank_lsb,omitempty"`
	Program    int                    `yaml:"program" json:"program"`
	Percussion bool                   `yaml:"percussion" json:"percussion"`
	Performers []PerformerDescription `yaml:"performers" json:"performers"`
}

type PerformerDescription struct {
	Name             string                  `yaml:"name" json:"name"`
	Keys             []int                   `yaml:"keys,omitempty" json:"keys,omitempty"`
	Velocities       []int                   `yaml:"velocities,omitempty" json:"velocities,omitempty"`
	ExclusiveClass   int                     `yaml:"exclusive_class" json:"exclusive_class"`
	SelfNonExclusive bool                    `yaml:"self_non_exclusive" json:"self_non_exclusive"`
	ReleaseTriggered bool                    `yaml:"release_triggered" json:"release_triggered"`
	DisableDefaults  bool                    `yaml:"disable_defaults" json:"disable_defaults"`
	Samples          []SampleDescription     `yaml:"samples" json:"samples"`
	Envelope         *EnvelopeDescription    `yaml:"envelope,omitempty" json:"envelope,omitempty"`
	Connections      []ConnectionDescription `yaml:"connections,omitempty" json:"connections,omitempty"`
}

// SampleDescription names a WAV file (relative to the bank) or a built-in waveform.
type SampleDescription struct {
	File        string  `yaml:"file,omitempty" json:"file,omitempty"`
	Builtin     string  `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	RootKey     *int    `yaml:"root_key,omitempty" json:"root_key,omitempty"`
	FineTune    float64 `yaml:"fine_tune" json:"fine_tune"`
	Attenuation float64 `yaml:"attenuation" json:"attenuation"`
	Start       int     `yaml:"start" json:"start"`
	End         int     `yaml:"end" json:"end"`
	Loop        string  `yaml:"loop,omitempty" json:"loop,omitempty"`
	LoopStart   *int    `yaml:"loop_start,omitempty" json:"loop_start,omitempty"`
	LoopEnd     *int    `yaml:"loop_end,omitempty" json:"loop_end,omitempty"`
}

// EnvelopeDescription sets the volume envelope in seconds; sustain is a level in [0, 1].
type EnvelopeDescription struct {
	Delay   float64  `yaml:"delay" json:"delay"`
	Attack  float64  `yaml:"attack" json:"attack"`
	Hold    float64  `yaml:"hold" json:"hold"`
	Decay   float64  `yaml:"decay" json:"decay"`
	Sustain *float64 `yaml:"sustain,omitempty" json:"sustain,omitempty"`
	Release float64  `yaml:"release" json:"release"`
}

// ConnectionDescription is one connection block. Identifiers use the
// textual form "object[.variable][:instance]", e.g. "midi_cc.1" or "eg.attack".
type ConnectionDescription struct {
	Dest    string              `yaml:"dest" json:"dest"`
	Scale   float64             `yaml:"scale" json:"scale"`
	Sources []SourceDescription `yaml:"sources,omitempty" json:"sources,omitempty"`
}

type SourceDescription struct {
	ID        string `yaml:"id" json:"id"`
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty"`
	Polarity  string `yaml:"polarity,omitempty" json:"polarity,omitempty"`
	Shape     string `yaml:"shape,omitempty" json:"shape,omitempty"`
}

// Load reads a bank description from a file. Sample files resolve relative to it.
// Files ending in .sf2 are read as SoundFonts.
func Load(file string) (*Bank, error) {
	if strings.EqualFold(filepath.Ext(file), ".sf2") {
		return LoadSF2(file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	desc, err := Parse(data, strings.EqualFold(filepath.Ext(file), ".json"))
	if err != nil {
		return nil, fmt.Errorf("load bank %s: %w", file, err)
	}
	b, err := desc.Build(os.DirFS(filepath.Dir(file)))
	if err != nil {
		return nil, fmt.Errorf("load bank %s: %w", file, err)
	}
	return b, nil
}

// Parse decodes a description. JSON input is decoded strictly.
func Parse(data []byte, isJSON bool) (*Description, error) {
	var d Description
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return &d, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &d, nil
}

// Build resolves samples from fsys and validates every instrument.
// Wavetables loaded from the same file are shared.
func (d *Description) Build(fsys fs.FS) (*Bank, error) {
	b := &Bank{Name: d.Name}
	files := map[string]*model.Wavetable{}
	seen := map[string]bool{}
	for i, id := range d.Instruments {
		ins, err := id.build(fsys, files)
		if err != nil {
			return nil, fmt.Errorf("instrument %d (%s): %w", i, id.Name, err)
		}
		if err := ins.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if seen[ins.Key()] {
			return nil, fmt.Errorf("%w: duplicate instrument %s", ErrMalformed, ins.Key())
		}
		seen[ins.Key()] = true
		b.Instruments = append(b.Instruments, ins)
	}
	return b, nil
}

func (id *InstrumentDescription) build(fsys fs.FS, files map[string]*model.Wavetable) (*model.Instrument, error) {
	bank := id.Bank
	if id.BankMSB != nil || id.BankLSB != nil {
		var msb, lsb int
		if id.BankMSB != nil {
			msb = *id.BankMSB
		}
		if id.BankLSB != nil {
			lsb = *id.BankLSB
		}
		if msb < 0 || msb > 127 || lsb < 0 || lsb > 127 {
			return nil, fmt.Errorf("%w: bank select %d/%d", ErrMalformed, msb, lsb)
		}
		bank = msb<<7 | lsb
	}
	ins := &model.Instrument{Name: id.Name, Bank: bank, Program: id.Program, Percussion: id.Percussion}
	for j, pd := range id.Performers {
		p, err := pd.build(fsys, files)
		if err != nil {
			return nil, fmt.Errorf("performer %d (%s): %w", j, pd.Name, err)
		}
		ins.Performers = append(ins.Performers, p)
	}
	return ins, nil
}

func span(r []int, what string) (int, int, error) {
	switch len(r) {
	case 0:
		return 0, 127, nil
	case 1:
		return r[0], r[0], nil
	case 2:
		return r[0], r[1], nil
	}
	return 0, 0, fmt.Errorf("%w: %s range has %d values", ErrMalformed, what, len(r))
}

func (pd *PerformerDescription) build(fsys fs.FS, files map[string]*model.Wavetable) (*model.Performer, error) {
	p := &model.Performer{
		Name:             pd.Name,
		ExclusiveClass:   pd.ExclusiveClass,
		SelfNonExclusive: pd.SelfNonExclusive,
		ReleaseTriggered: pd.ReleaseTriggered,
		DisableDefaults:  pd.DisableDefaults,
	}
	var err error
	if p.KeyFrom, p.KeyTo, err = span(pd.Keys, "key"); err != nil {
		return nil, err
	}
	if p.VelFrom, p.VelTo, err = span(pd.Velocities, "velocity"); err != nil {
		return nil, err
	}
	for k, sd := range pd.Samples {
		w, err := sd.build(fsys, files)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", k, err)
		}
		p.Oscillators = append(p.Oscillators, w)
	}
	if e := pd.Envelope; e != nil {
		p.Connections = append(p.Connections, e.blocks()...)
	}
	for k, cd := range pd.Connections {
		c, err := cd.build()
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", k, err)
		}
		p.Connections = append(p.Connections, c)
	}
	return p, nil
}

func (sd *SampleDescription) build(fsys fs.FS, files map[string]*model.Wavetable) (*model.Wavetable, error) {
	var src *model.Wavetable
	switch {
	case sd.File != "" && sd.Builtin != "":
		return nil, fmt.Errorf("%w: sample names both a file and a builtin", ErrMalformed)
	case sd.Builtin != "":
		if src = Builtin(sd.Builtin); src == nil {
			return nil, fmt.Errorf("%w: unknown builtin waveform %q", ErrMalformed, sd.Builtin)
		}
	case sd.File != "":
		name := path.Clean(filepath.ToSlash(sd.File))
		if src = files[name]; src == nil {
			f, err := fsys.Open(name)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r, ok := f.(RIFFReader)
			if !ok {
				data, err := fs.ReadFile(fsys, name)
				if err != nil {
					return nil, err
				}
				r = bytes.NewReader(data)
			}
			if src, err = LoadWAV(r); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			files[name] = src
		}
	default:
		return nil, fmt.Errorf("%w: sample has no source", ErrMalformed)
	}

	end := sd.End
	if end <= 0 {
		end = src.Len()
	}
	if sd.Start < 0 || end > src.Len() || sd.Start >= end {
		return nil, fmt.Errorf("%w: sample range %d..%d of %d", ErrMalformed, sd.Start, end, src.Len())
	}
	w := src.Slice(sd.Start, end)
	w.Attenuation = sd.Attenuation
	if sd.RootKey != nil {
		w.SetRootKey(*sd.RootKey, sd.FineTune)
	} else if sd.File != "" {
		w.SetRootKey(60, sd.FineTune)
	} else {
		w.PitchCorrection += sd.FineTune
	}
	if sd.Loop != "" {
		lt, err := parseLoop(sd.Loop)
		if err != nil {
			return nil, err
		}
		w.LoopType = lt
		if lt != model.LoopOff && (sd.LoopStart != nil || sd.LoopEnd != nil) {
			ls, le := 0, w.Len()
			if sd.LoopStart != nil {
				ls = *sd.LoopStart
			}
			if sd.LoopEnd != nil {
				le = *sd.LoopEnd
			}
			if ls < 0 || le > w.Len() || ls >= le {
				return nil, fmt.Errorf("%w: loop %d..%d of %d", ErrMalformed, ls, le, w.Len())
			}
			w.LoopStart, w.LoopLength = float64(ls), float64(le-ls)
		} else if lt != model.LoopOff && w.LoopLength == 0 {
			w.LoopStart, w.LoopLength = 0, float64(w.Len())
		}
	}
	return w, nil
}

func parseLoop(s string) (model.LoopType, error) {
	switch strings.ToLower(s) {
	case "off", "none":
		return model.LoopOff, nil
	case "forward":
		return model.LoopForward, nil
	case "release":
		return model.LoopForward | model.LoopRelease, nil
	case "pingpong", "ping_pong":
		return model.LoopForward | model.LoopPingPong, nil
	case "reverse":
		return model.LoopForward | model.LoopReverse, nil
	}
	return 0, fmt.Errorf("%w: unknown loop mode %q", ErrMalformed, s)
}

func (e *EnvelopeDescription) blocks() []model.ConnectionBlock {
	tc := func(sec float64) float64 {
		if sec <= 0 {
			return negInf
		}
		return timecents(sec)
	}
	out := []model.ConnectionBlock{
		model.Const(tc(e.Delay), eg(model.EGDelay, 0)),
		model.Const(tc(e.Attack), eg(model.EGAttack, 0)),
		model.Const(tc(e.Hold), eg(model.EGHold, 0)),
		model.Const(tc(e.Decay), eg(model.EGDecay, 0)),
		model.Const(tc(e.Release), eg(model.EGRelease, 0)),
	}
	if e.Sustain != nil {
		out = append(out, model.Const(min(max(*e.Sustain, 0), 1)*1000, eg(model.EGSustain, 0)))
	}
	return out
}

// negInf is an instantaneous stage in timecents.
var negInf = math.Inf(-1)

func (cd *ConnectionDescription) build() (model.ConnectionBlock, error) {
	dest, err := model.ParseIdentifier(cd.Dest)
	if err != nil {
		return model.ConnectionBlock{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(cd.Sources) > model.MaxSources {
		return model.ConnectionBlock{}, fmt.Errorf("%w: %d sources", ErrMalformed, len(cd.Sources))
	}
	c := model.ConnectionBlock{Destination: dest, Scale: cd.Scale}
	for _, sd := range cd.Sources {
		s, err := sd.build()
		if err != nil {
			return model.ConnectionBlock{}, err
		}
		c.Sources = append(c.Sources, s)
	}
	return c, nil
}

func (sd *SourceDescription) build() (model.Source, error) {
	id, err := model.ParseIdentifier(sd.ID)
	if err != nil {
		return model.Source{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var t model.Transform
	switch strings.ToLower(sd.Direction) {
	case "", "min_to_max":
	case "max_to_min":
		t.Direction = model.MaxToMin
	default:
		return model.Source{}, fmt.Errorf("%w: direction %q", ErrMalformed, sd.Direction)
	}
	switch strings.ToLower(sd.Polarity) {
	case "", "unipolar":
	case "bipolar":
		t.Polarity = model.Bipolar
	default:
		return model.Source{}, fmt.Errorf("%w: polarity %q", ErrMalformed, sd.Polarity)
	}
	switch strings.ToLower(sd.Shape) {
	case "", "linear":
	case "concave":
		t.Shape = model.Concave
	case "convex":
		t.Shape = model.Convex
	case "switch":
		t.Shape = model.Switch
	case "absolute":
		t.Shape = model.Absolute
	default:
		return model.Source{}, fmt.Errorf("%w: shape %q", ErrMalformed, sd.Shape)
	}
	return model.Source{ID: id, Transform: t}, nil
}
