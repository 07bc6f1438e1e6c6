// Package performer compiles instrument zones into flat, index-addressed
// modulation tables consumed by voices.
package performer

import (
	"github.com/cbegin/softsynth-go/internal/model"
)

// Destination slots. Every routable synthesis parameter has a fixed index so
// voices keep their resolved values in a flat array.
const (
	SlotPitch  = 0
	SlotMixer  = 1                              // NumMixerVars slots
	SlotFilter = SlotMixer + model.NumMixerVars // freq, q
	SlotEG     = SlotFilter + 2                 // two envelopes of NumEGVars slots each
	SlotLFO    = SlotEG + 2*model.NumEGVars     // two LFOs of NumLFOVars slots each
	SlotKey    = SlotLFO + 2*model.NumLFOVars   // forced noteon.keynumber
	SlotVel    = SlotKey + 1                    // forced noteon.velocity
	NumSlots   = SlotVel + 1
)

// DestSlot maps a destination identifier to its slot, or -1 when the engine has no such parameter.
func DestSlot(id model.Identifier) int {
	switch id.Object {
	case model.ObjOsc:
		if id.Variable == model.OscPitch && id.Instance == 0 {
			return SlotPitch
		}
	case model.ObjMixer:
		if id.Variable >= 0 && id.Variable < model.NumMixerVars && id.Instance == 0 {
			return SlotMixer + id.Variable
		}
	case model.ObjFilter:
		if (id.Variable == model.FilterFreq || id.Variable == model.FilterQ) && id.Instance == 0 {
			return SlotFilter + id.Variable
		}
	case model.ObjEG:
		if id.Variable >= 0 && id.Variable < model.NumEGVars && id.Instance >= 0 && id.Instance < 2 {
			return SlotEG + id.Instance*model.NumEGVars + id.Variable
		}
	case model.ObjLFO:
		if id.Variable >= 0 && id.Variable < model.NumLFOVars && id.Instance >= 0 && id.Instance < 2 {
			return SlotLFO + id.Instance*model.NumLFOVars + id.Variable
		}
	case model.ObjNoteOn:
		switch id.Variable {
		case model.NoteOnKeynumber:
			return SlotKey
		case model.NoteOnVelocity:
			return SlotVel
		}
	}
	return -1
}

// EGSlot returns the slot of envelope variable v for envelope instance i.
func EGSlot(i, v int) int { return SlotEG + i*model.NumEGVars + v }

// LFOSlot returns the slot of LFO variable v for LFO instance i.
func LFOSlot(i, v int) int { return SlotLFO + i*model.NumLFOVars + v }

// RefKind classifies where a voice reads a source value from.
type RefKind int

const (
	RefNone RefKind = iota
	RefKeynumber
	RefVelocity
	RefNoteOn
	RefPitchBend
	RefChannelPressure
	RefPolyPressure
	RefCC
	RefRPN
	RefNRPN
	RefEG
	RefEGActive
	RefLFO
	RefMaster
)

// Ref is a resolved source: a kind plus a controller number or instance.
type Ref struct {
	Kind  RefKind
	Index int
}

func resolve(id model.Identifier) Ref {
	switch id.Object {
	case model.ObjNoteOn:
		switch id.Variable {
		case model.NoteOnKeynumber:
			return Ref{Kind: RefKeynumber}
		case model.NoteOnVelocity:
			return Ref{Kind: RefVelocity}
		case model.NoteOnOn:
			return Ref{Kind: RefNoteOn}
		}
	case model.ObjMIDI:
		switch id.Variable {
		case model.MIDIPitch:
			return Ref{Kind: RefPitchBend}
		case model.MIDIChannelPressure:
			return Ref{Kind: RefChannelPressure}
		case model.MIDIPolyPressure:
			return Ref{Kind: RefPolyPressure}
		}
	case model.ObjMIDICC:
		if id.Variable >= 0 && id.Variable < 128 {
			return Ref{Kind: RefCC, Index: id.Variable}
		}
	case model.ObjMIDIRPN:
		if id.Variable >= 0 {
			return Ref{Kind: RefRPN, Index: id.Variable}
		}
	case model.ObjMIDINRPN:
		if id.Variable >= 0 {
			return Ref{Kind: RefNRPN, Index: id.Variable}
		}
	case model.ObjEG:
		if id.Instance < 0 || id.Instance > 1 {
			break
		}
		if id.Variable == model.VarNone {
			return Ref{Kind: RefEG, Index: id.Instance}
		}
		if id.Variable == model.EGActive {
			return Ref{Kind: RefEGActive, Index: id.Instance}
		}
	case model.ObjLFO:
		if id.Variable == model.VarNone && id.Instance >= 0 && id.Instance < 2 {
			return Ref{Kind: RefLFO, Index: id.Instance}
		}
	case model.ObjMaster:
		return Ref{Kind: RefMaster, Index: id.Variable}
	}
	return Ref{}
}

// MaxBlockSources is the largest source count of any compiled block.
const MaxBlockSources = model.MaxSources + 1

// Block is a connection block with its sources and destination resolved.
type Block struct {
	Sources    [MaxBlockSources]Ref
	Transforms [MaxBlockSources]model.Transformer
	NumSources int
	Dest       int
	Scale      float64
	Conn       model.ConnectionBlock
}

// Fast-path indices of the fixed MIDI sources.
const (
	MIDIPitch = iota
	MIDIChannelPressure
	MIDIPolyPressure
	MIDINoteOn
	MIDIKeynumber
)

// Compiled is a performer ready for playback.
type Compiled struct {
	*model.Performer
	// Blocks holds every merged connection. The first NoteOnBlocks entries target
	// noteon.* and are evaluated once, before all others, at note-on.
	Blocks          []Block
	NoteOnBlocks    int
	ForcedKeynumber bool
	ForcedVelocity  bool
	// Gated is set when some block drives mixer.active; otherwise a voice only
	// ends when its oscillator runs out.
	Gated bool

	CC   [128][]int
	RPN  map[int][]int
	NRPN map[int][]int
	MIDI [5][]int
	// Tick lists blocks whose sources change continuously (envelopes, LFOs, master controls).
	Tick []int
}

// Merge unions the default library with the performer's own blocks. A performer block
// replaces a default block with the same sources and destination. Order is deterministic.
func Merge(p *model.Performer) []model.ConnectionBlock {
	var order []model.ConnectionBlock
	index := map[string]int{}
	put := func(c model.ConnectionBlock) {
		k := c.Key()
		if i, ok := index[k]; ok {
			order[i] = c
			return
		}
		index[k] = len(order)
		order = append(order, c)
	}
	conns := append([]model.ConnectionBlock(nil), p.Connections...)
	if !p.DisableDefaults {
		conns = extendModulation(conns, put)
		vibrato(conns, put)
		for _, c := range Defaults() {
			put(c)
		}
	}
	for _, c := range conns {
		put(c)
	}
	return order
}

// Compile merges and indexes the connections of p.
func Compile(p *model.Performer) *Compiled {
	merged := Merge(p)
	cp := &Compiled{
		Performer: p,
		RPN:       map[int][]int{},
		NRPN:      map[int][]int{},
	}
	var top, rest []model.ConnectionBlock
	for _, c := range merged {
		if c.Destination.Object == model.ObjNoteOn {
			switch c.Destination.Variable {
			case model.NoteOnKeynumber:
				cp.ForcedKeynumber = true
			case model.NoteOnVelocity:
				cp.ForcedVelocity = true
			}
			top = append(top, c)
			continue
		}
		rest = append(rest, c)
	}
	cp.NoteOnBlocks = len(top)
	cp.Blocks = make([]Block, 0, len(merged))
	for _, c := range append(top, rest...) {
		b := Block{Dest: DestSlot(c.Destination), Scale: c.Scale, Conn: c}
		if b.Dest == SlotMixer+model.MixerActive {
			cp.Gated = true
		}
		for i, s := range c.Sources {
			if i >= MaxBlockSources {
				break
			}
			b.Sources[i] = resolve(s.ID)
			b.Transforms[i] = s.Transform
			b.NumSources++
		}
		cp.Blocks = append(cp.Blocks, b)
	}
	for ix := cp.NoteOnBlocks; ix < len(cp.Blocks); ix++ {
		b := &cp.Blocks[ix]
		for i := 0; i < b.NumSources; i++ {
			cp.index(b.Sources[i], ix)
		}
	}
	return cp
}

func (cp *Compiled) index(r Ref, ix int) {
	switch r.Kind {
	case RefCC:
		cp.CC[r.Index] = append(cp.CC[r.Index], ix)
	case RefRPN:
		cp.RPN[r.Index] = append(cp.RPN[r.Index], ix)
	case RefNRPN:
		cp.NRPN[r.Index] = append(cp.NRPN[r.Index], ix)
	case RefPitchBend:
		cp.MIDI[MIDIPitch] = append(cp.MIDI[MIDIPitch], ix)
	case RefChannelPressure:
		cp.MIDI[MIDIChannelPressure] = append(cp.MIDI[MIDIChannelPressure], ix)
	case RefPolyPressure:
		cp.MIDI[MIDIPolyPressure] = append(cp.MIDI[MIDIPolyPressure], ix)
	case RefNoteOn:
		cp.MIDI[MIDINoteOn] = append(cp.MIDI[MIDINoteOn], ix)
	case RefKeynumber:
		cp.MIDI[MIDIKeynumber] = append(cp.MIDI[MIDIKeynumber], ix)
	case RefVelocity:
		// fixed for the life of the note
	case RefEG, RefEGActive, RefLFO, RefMaster:
		if n := len(cp.Tick); n == 0 || cp.Tick[n-1] != ix {
			cp.Tick = append(cp.Tick, ix)
		}
	}
}

// Instrument is a loaded instrument with its performers compiled.
type Instrument struct {
	*model.Instrument
	Performers []*Compiled
	Director   model.Director
}

// CompileInstrument compiles every performer of ins.
func CompileInstrument(ins *model.Instrument) *Instrument {
	ci := &Instrument{
		Instrument: ins,
		Performers: make([]*Compiled, len(ins.Performers)),
		Director:   model.NewDirector(ins),
	}
	for i, p := range ins.Performers {
		ci.Performers[i] = Compile(p)
	}
	return ci
}
