package lfo

import (
	"math"
	"testing"
)

// cents for a given frequency, inverse of Hz.
func cents(hz float64) float64 { return 6900 + 1200*math.Log2(hz/440) }

func TestHzReference(t *testing.T) {
	if math.Abs(Hz(6900)-440) > 1e-9 {
		t.Fatalf("Hz(6900) = %f", Hz(6900))
	}
	if math.Abs(Hz(0)-8.1758) > 1e-3 {
		t.Fatalf("Hz(0) = %f", Hz(0))
	}
}

func TestLFOTriangleBasicShape(t *testing.T) {
	l := &LFO{}
	l.Reset(100) // 100 ticks per second
	l.SetWaveform(WaveTriangle)
	f := cents(1)
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Step(math.Inf(-1), f)
	}
	// At phase 0, triangle is at its minimum (0 once unipolar).
	if math.Abs(samples[0]) > 0.05 {
		t.Errorf("triangle at phase 0: got %f, want 0", samples[0])
	}
	if math.Abs(samples[25]-0.5) > 0.05 {
		t.Errorf("triangle at phase 0.25: got %f, want 0.5", samples[25])
	}
	if math.Abs(samples[50]-1.0) > 0.05 {
		t.Errorf("triangle at phase 0.5: got %f, want 1.0", samples[50])
	}
}

func TestLFOSquareShape(t *testing.T) {
	l := &LFO{}
	l.Reset(100)
	l.SetWaveform(WaveSquare)
	f := cents(1)
	if v := l.Step(math.Inf(-1), f); v != 1 {
		t.Errorf("square first half: got %f, want 1", v)
	}
	for i := 1; i < 60; i++ {
		l.Step(math.Inf(-1), f)
	}
	if v := l.Step(math.Inf(-1), f); v != 0 {
		t.Errorf("square second half: got %f, want 0", v)
	}
}

func TestLFOSineStaysInRange(t *testing.T) {
	l := &LFO{}
	l.Reset(147)
	var lo, hi = 1.0, 0.0
	for i := 0; i < 1000; i++ {
		v := l.Step(math.Inf(-1), cents(5))
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo < 0 || hi > 1 {
		t.Fatalf("sine out of range: [%f, %f]", lo, hi)
	}
	if hi-lo < 0.9 {
		t.Fatalf("sine should swing across the range, got [%f, %f]", lo, hi)
	}
}

func TestLFODelayHoldsMidpoint(t *testing.T) {
	l := &LFO{}
	l.Reset(100)
	delay := 1200 * math.Log2(0.2) // 20 ticks
	for i := 0; i < 20; i++ {
		if v := l.Step(delay, cents(5)); v != 0.5 {
			t.Fatalf("tick %d: want midpoint during delay, got %f", i, v)
		}
	}
	moved := false
	for i := 0; i < 10; i++ {
		if l.Step(delay, cents(5)) != 0.5 {
			moved = true
		}
	}
	if !moved {
		t.Fatal("lfo should start moving after its delay")
	}
}

func TestLFORandomProducesValues(t *testing.T) {
	l := &LFO{}
	l.Reset(1000)
	l.SetWaveform(WaveRandom)
	for i := 0; i < 400; i++ {
		v := l.Step(math.Inf(-1), cents(10))
		if v < 0 || v > 1 {
			t.Errorf("random sample out of range: %f", v)
		}
	}
}
