package main

import (
	"math"
	"testing"
)

func TestMeterReadResets(t *testing.T) {
	m := newMeter(16)
	m.Tap([]float32{0.5, -0.25, -0.5, 0.25, 0.5, -0.25, -0.5, 0.25})
	l := m.Read()
	tests := []struct {
		name      string
		got, want float64
	}{
		{"left peak", l.peak[0], 0.5},
		{"right peak", l.peak[1], 0.25},
		{"left rms", l.rms[0], 0.5},
		{"right rms", l.rms[1], 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Fatalf("got %f, want %f", tt.got, tt.want)
			}
		})
	}
	if again := m.Read(); again != (levels{}) {
		t.Fatalf("second read = %+v", again)
	}
}

func TestMeterScopeWraps(t *testing.T) {
	m := newMeter(4)
	var frames []float32
	for i := 1; i <= 6; i++ {
		frames = append(frames, float32(i), float32(i))
	}
	m.Tap(frames)
	got := make([]float32, 3)
	m.Scope(got)
	for i, want := range []float32{4, 5, 6} {
		if got[i] != want {
			t.Fatalf("scope = %v", got)
		}
	}
	long := make([]float32, 8)
	m.Scope(long)
	for i, want := range []float32{3, 4, 5, 6} {
		if long[i] != want {
			t.Fatalf("scope longer than history = %v", long)
		}
	}
}

func TestToDB(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"full scale", 1, 0},
		{"half", 0.5, -6.0206},
		{"silence", 0, floorDB},
		{"below floor", 1e-6, floorDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toDB(tt.v); math.Abs(got-tt.want) > 1e-3 {
				t.Fatalf("toDB(%g) = %f, want %f", tt.v, got, tt.want)
			}
		})
	}
	if dbFrac(floorDB) != 0 || dbFrac(0) != 1 || dbFrac(6) != 1 {
		t.Fatal("meter scale should clamp to 0..1")
	}
}

func TestBallisticsHoldAndFall(t *testing.T) {
	b := newBallistics()
	b.update(-6)
	if b.bar != -6 || b.mark != -6 {
		t.Fatalf("after attack bar=%f mark=%f", b.bar, b.mark)
	}
	for i := 0; i < meterHold; i++ {
		b.update(floorDB)
	}
	if b.mark != -6 {
		t.Fatalf("marker moved during hold: %f", b.mark)
	}
	if want := max(-6-meterHold*meterFall, floorDB); math.Abs(b.bar-want) > 1e-9 {
		t.Fatalf("bar = %f, want %f", b.bar, want)
	}
	b.update(floorDB)
	if b.mark >= -6 {
		t.Fatalf("marker should fall after the hold, got %f", b.mark)
	}
}
