package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Object is the closed set of control-signal categories an Identifier can name.
type Object int

const (
	ObjNone Object = iota
	ObjNoteOn
	ObjMIDI
	ObjMIDICC
	ObjMIDIRPN
	ObjMIDINRPN
	ObjEG
	ObjLFO
	ObjOsc
	ObjMixer
	ObjFilter
	ObjMaster
)

var objectNames = [...]string{
	ObjNone:     "none",
	ObjNoteOn:   "noteon",
	ObjMIDI:     "midi",
	ObjMIDICC:   "midi_cc",
	ObjMIDIRPN:  "midi_rpn",
	ObjMIDINRPN: "midi_nrpn",
	ObjEG:       "eg",
	ObjLFO:      "lfo",
	ObjOsc:      "osc",
	ObjMixer:    "mixer",
	ObjFilter:   "filter",
	ObjMaster:   "master",
}

func (o Object) String() string {
	if o < 0 || int(o) >= len(objectNames) {
		return "Object(" + strconv.Itoa(int(o)) + ")"
	}
	return objectNames[o]
}

// ParseObject maps a category name ("midi_cc", "eg", ...) to its Object.
func ParseObject(name string) (Object, bool) {
	for i, n := range objectNames {
		if n == name {
			return Object(i), true
		}
	}
	return ObjNone, false
}

// VarNone marks an Identifier that names the object's output itself
// (e.g. the envelope level or the LFO value) rather than one of its variables.
const VarNone = -1

// noteon variables
const (
	NoteOnKeynumber = iota
	NoteOnVelocity
	NoteOnOn
)

// midi variables
const (
	MIDIPitch = iota
	MIDIChannelPressure
	MIDIPolyPressure
)

// eg variables
const (
	EGOn = iota
	EGActive
	EGDelay
	EGAttack
	EGHold
	EGDecay
	EGSustain
	EGRelease
	EGShutdown
	EGDelay2
	EGAttack2
	EGHold2
	EGDecay2
	EGSustain2
	EGRelease2
	NumEGVars
)

// lfo variables
const (
	LFODelay = iota
	LFOFreq
	LFODelay2
	LFOFreq2
	NumLFOVars
)

// osc variables
const (
	OscPitch = iota
)

// mixer variables
const (
	MixerGain = iota
	MixerPan
	MixerBalance
	MixerReverb
	MixerChorus
	MixerActive
	NumMixerVars
)

// filter variables
const (
	FilterFreq = iota
	FilterQ
)

// master variables
const (
	MasterFineTuning = iota
	MasterCoarseTuning
	MasterVolume
	MasterBalance
)

var variableNames = map[Object][]string{
	ObjNoteOn: {"keynumber", "velocity", "on"},
	ObjMIDI:   {"pitch", "channel_pressure", "poly_pressure"},
	ObjEG: {"on", "active", "delay", "attack", "hold", "decay", "sustain", "release", "shutdown",
		"delay2", "attack2", "hold2", "decay2", "sustain2", "release2"},
	ObjLFO:    {"delay", "freq", "delay2", "freq2"},
	ObjOsc:    {"pitch"},
	ObjMixer:  {"gain", "pan", "balance", "reverb", "chorus", "active"},
	ObjFilter: {"freq", "q"},
	ObjMaster: {"fine_tuning", "coarse_tuning", "volume", "balance"},
}

// Identifier names a control signal source or a synthesis parameter destination.
type Identifier struct {
	Object   Object
	Variable int
	Instance int
}

// ID is shorthand for building an Identifier.
func ID(obj Object, variable, instance int) Identifier {
	return Identifier{Object: obj, Variable: variable, Instance: instance}
}

// CC returns the identifier of MIDI controller n.
func CC(n int) Identifier { return Identifier{Object: ObjMIDICC, Variable: n} }

// RPN returns the identifier of registered parameter n.
func RPN(n int) Identifier { return Identifier{Object: ObjMIDIRPN, Variable: n} }

// NRPN returns the identifier of non-registered parameter n.
func NRPN(n int) Identifier { return Identifier{Object: ObjMIDINRPN, Variable: n} }

// Common identifiers.
var (
	SrcKeynumber       = Identifier{ObjNoteOn, NoteOnKeynumber, 0}
	SrcVelocity        = Identifier{ObjNoteOn, NoteOnVelocity, 0}
	SrcNoteOn          = Identifier{ObjNoteOn, NoteOnOn, 0}
	SrcPitchBend       = Identifier{ObjMIDI, MIDIPitch, 0}
	SrcChannelPressure = Identifier{ObjMIDI, MIDIChannelPressure, 0}
	SrcPolyPressure    = Identifier{ObjMIDI, MIDIPolyPressure, 0}
	SrcEG1             = Identifier{ObjEG, VarNone, 0}
	SrcEG2             = Identifier{ObjEG, VarNone, 1}
	SrcLFO1            = Identifier{ObjLFO, VarNone, 0}
	SrcLFO2            = Identifier{ObjLFO, VarNone, 1}

	DestPitch   = Identifier{ObjOsc, OscPitch, 0}
	DestGain    = Identifier{ObjMixer, MixerGain, 0}
	DestPan     = Identifier{ObjMixer, MixerPan, 0}
	DestBalance = Identifier{ObjMixer, MixerBalance, 0}
	DestReverb  = Identifier{ObjMixer, MixerReverb, 0}
	DestChorus  = Identifier{ObjMixer, MixerChorus, 0}
	DestActive  = Identifier{ObjMixer, MixerActive, 0}
	DestCutoff  = Identifier{ObjFilter, FilterFreq, 0}
	DestQ       = Identifier{ObjFilter, FilterQ, 0}
)

func (id Identifier) String() string {
	s := id.Object.String()
	if id.Variable != VarNone {
		switch id.Object {
		case ObjMIDICC, ObjMIDIRPN, ObjMIDINRPN:
			s += "." + strconv.Itoa(id.Variable)
		default:
			names := variableNames[id.Object]
			if id.Variable >= 0 && id.Variable < len(names) {
				s += "." + names[id.Variable]
			} else {
				s += ".#" + strconv.Itoa(id.Variable)
			}
		}
	}
	if id.Instance != 0 {
		s += ":" + strconv.Itoa(id.Instance)
	}
	return s
}

// ParseIdentifier parses the textual form produced by String:
// object[.variable][:instance], e.g. "midi_cc.7", "eg.attack:1", "lfo:1".
func ParseIdentifier(s string) (Identifier, error) {
	id := Identifier{Variable: VarNone}
	rest := s
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		n, err := strconv.Atoi(rest[i+1:])
		if err != nil || n < 0 {
			return Identifier{}, fmt.Errorf("identifier %q: bad instance", s)
		}
		id.Instance = n
		rest = rest[:i]
	}
	obj, variable := rest, ""
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		obj, variable = rest[:i], rest[i+1:]
	}
	o, ok := ParseObject(obj)
	if !ok || o == ObjNone {
		return Identifier{}, fmt.Errorf("identifier %q: unknown object %q", s, obj)
	}
	id.Object = o
	if variable == "" {
		return id, nil
	}
	switch o {
	case ObjMIDICC, ObjMIDIRPN, ObjMIDINRPN:
		n, err := strconv.Atoi(variable)
		if err != nil || n < 0 {
			return Identifier{}, fmt.Errorf("identifier %q: bad number %q", s, variable)
		}
		if o == ObjMIDICC && n > 127 {
			return Identifier{}, fmt.Errorf("identifier %q: controller out of range", s)
		}
		id.Variable = n
		return id, nil
	}
	for i, n := range variableNames[o] {
		if n == variable {
			id.Variable = i
			return id, nil
		}
	}
	return Identifier{}, fmt.Errorf("identifier %q: unknown variable %q", s, variable)
}
