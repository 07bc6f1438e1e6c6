package model

import "math"

// Transformer maps a normalized source value to a modulation amount.
type Transformer interface {
	Transform(v float64) float64
}

// TransformFunc adapts a plain function to Transformer.
type TransformFunc func(v float64) float64

func (f TransformFunc) Transform(v float64) float64 { return f(v) }

type Direction int

const (
	MinToMax Direction = iota
	MaxToMin
)

type Polarity int

const (
	Unipolar Polarity = iota
	Bipolar
)

type Shape int

const (
	Linear Shape = iota
	Concave
	Convex
	Switch
	Absolute
)

// Transform is the standard source transform: direction, then polarity, then shape.
type Transform struct {
	Direction Direction
	Polarity  Polarity
	Shape     Shape
}

// curveK is (5/12)/ln(10), the slope of the concave/convex curves.
var curveK = (5.0 / 12.0) / math.Ln10

func (t Transform) Transform(v float64) float64 {
	if t.Direction == MaxToMin {
		v = 1 - v
	}
	if t.Polarity == Bipolar {
		v = v*2 - 1
	}
	switch t.Shape {
	case Concave:
		s := math.Copysign(1, v)
		a := math.Abs(v)
		a = -curveK * math.Log(1-a)
		return s * clamp01(a)
	case Convex:
		s := math.Copysign(1, v)
		a := math.Abs(v)
		a = 1 + curveK*math.Log(a)
		return s * clamp01(a)
	case Switch:
		if t.Polarity == Bipolar {
			if v > 0 {
				return 1
			}
			return -1
		}
		if v > 0.5 {
			return 1
		}
		return 0
	case Absolute:
		return math.Abs(v)
	}
	return v
}

func clamp01(a float64) float64 {
	if a < 0 || math.IsNaN(a) {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

// Source is a control signal plus the transform applied to it.
// A nil Transform passes the raw value through.
type Source struct {
	ID        Identifier
	Transform Transformer
}

// NewSource builds a Source with a standard transform.
func NewSource(id Identifier, dir Direction, pol Polarity, shape Shape) Source {
	return Source{ID: id, Transform: Transform{Direction: dir, Polarity: pol, Shape: shape}}
}

// Value applies the source transform to a raw normalized value.
func (s Source) Value(raw float64) float64 {
	if s.Transform == nil {
		return raw
	}
	return s.Transform.Transform(raw)
}
