package model

import "strings"

// MaxSources bounds the number of sources an instrument may declare on one block.
// Injected default blocks may carry one extra scaling source (modulation depth).
const MaxSources = 2

// ConnectionBlock routes the product of its sources, times Scale, into Destination.
// A block with no sources is a constant.
type ConnectionBlock struct {
	Sources     []Source
	Destination Identifier
	Scale       float64
}

// Key identifies the routing of a block (its source identifiers and destination),
// ignoring transforms and scale. Blocks with equal keys override each other.
func (c ConnectionBlock) Key() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for _, s := range c.Sources {
		sb.WriteString(s.ID.String())
		sb.WriteByte(';')
	}
	sb.WriteString("];")
	sb.WriteString(c.Destination.String())
	return sb.String()
}

// Value computes scale * transform(s1) * transform(s2) ... for the given raw source values.
func (c ConnectionBlock) Value(raw []float64) float64 {
	v := c.Scale
	for i, s := range c.Sources {
		v *= s.Value(raw[i])
	}
	return v
}

// HasSource reports whether any source of the block is id.
func (c ConnectionBlock) HasSource(id Identifier) bool {
	for _, s := range c.Sources {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Const returns a source-less block that adds value to dest.
func Const(value float64, dest Identifier) ConnectionBlock {
	return ConnectionBlock{Destination: dest, Scale: value}
}

// Connect returns a block routing the given sources into dest.
func Connect(scale float64, dest Identifier, sources ...Source) ConnectionBlock {
	return ConnectionBlock{Sources: sources, Destination: dest, Scale: scale}
}
