package model

import (
	"errors"
	"fmt"
	"strconv"
)

// Performer is one zone of an instrument: key and velocity ranges, oscillators
// and modulation routing.
type Performer struct {
	Name           string
	KeyFrom        int
	KeyTo          int
	VelFrom        int
	VelTo          int
	ExclusiveClass int
	// SelfNonExclusive lets a repeated key with the same exclusive class overlap itself.
	SelfNonExclusive bool
	// ReleaseTriggered performers sound on note-off instead of note-on.
	ReleaseTriggered bool
	// DisableDefaults turns off the injected GM2 baseline connection blocks.
	DisableDefaults bool
	Oscillators     []*Wavetable
	Connections     []ConnectionBlock
}

// NewPerformer returns a performer covering the full key and velocity range.
func NewPerformer(osc ...*Wavetable) *Performer {
	return &Performer{KeyTo: 127, VelTo: 127, Oscillators: osc}
}

// Matches reports whether key and velocity fall within the performer's ranges.
func (p *Performer) Matches(key, velocity int) bool {
	return key >= p.KeyFrom && key <= p.KeyTo && velocity >= p.VelFrom && velocity <= p.VelTo
}

// Validate checks structural invariants.
func (p *Performer) Validate() error {
	if p.KeyFrom < 0 || p.KeyTo > 127 || p.KeyFrom > p.KeyTo {
		return fmt.Errorf("performer %q: bad key range %d..%d", p.Name, p.KeyFrom, p.KeyTo)
	}
	if p.VelFrom < 0 || p.VelTo > 127 || p.VelFrom > p.VelTo {
		return fmt.Errorf("performer %q: bad velocity range %d..%d", p.Name, p.VelFrom, p.VelTo)
	}
	if len(p.Oscillators) == 0 {
		return fmt.Errorf("performer %q: no oscillators", p.Name)
	}
	for i, c := range p.Connections {
		if len(c.Sources) > MaxSources {
			return fmt.Errorf("performer %q: connection %d has %d sources", p.Name, i, len(c.Sources))
		}
	}
	return nil
}

// Instrument is an ordered list of performers registered at (bank, program, percussion).
// Bank is the 14-bit value MSB<<7 | LSB.
type Instrument struct {
	Name       string
	Bank       int
	Program    int
	Percussion bool
	Performers []*Performer
}

var ErrNoPerformers = errors.New("instrument has no performers")

// Key returns the table key: "p.<program>.<bank>" for percussion, "<program>.<bank>" otherwise.
func (ins *Instrument) Key() string {
	return InstrumentKey(ins.Bank, ins.Program, ins.Percussion)
}

// InstrumentKey formats the table key for a (bank, program, percussion) triple.
func InstrumentKey(bank, program int, percussion bool) string {
	k := strconv.Itoa(program) + "." + strconv.Itoa(bank)
	if percussion {
		return "p." + k
	}
	return k
}

// Validate checks the instrument and all of its performers.
func (ins *Instrument) Validate() error {
	if ins.Program < 0 || ins.Program > 127 {
		return fmt.Errorf("instrument %q: program %d out of range", ins.Name, ins.Program)
	}
	if ins.Bank < 0 || ins.Bank > 16383 {
		return fmt.Errorf("instrument %q: bank %d out of range", ins.Name, ins.Bank)
	}
	if len(ins.Performers) == 0 {
		return fmt.Errorf("instrument %q: %w", ins.Name, ErrNoPerformers)
	}
	for _, p := range ins.Performers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("instrument %q: %w", ins.Name, err)
		}
	}
	return nil
}
