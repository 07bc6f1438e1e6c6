package effects

import (
	"errors"
	"math"
	"testing"
)

func TestDelayProducesOutput(t *testing.T) {
	d := NewDelay(44100, 100, 0.5, 0, 0.5)
	d.Process(1, 1)
	for i := 0; i < 4409; i++ {
		d.Process(0, 0)
	}
	l, r := d.Process(0, 0)
	if math.Abs(float64(l)) < 0.01 || math.Abs(float64(r)) < 0.01 {
		t.Errorf("expected delayed output, got l=%f r=%f", l, r)
	}
}

func TestReverbSendProducesStereoTail(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7)
	in := make([]float32, 300)
	outL := make([]float32, 300)
	outR := make([]float32, 300)
	in[0] = 1
	r.Send(in, outL, outR)
	in[0] = 0
	var maxL, maxR float32
	var differ bool
	for block := 0; block < 40; block++ {
		clear(outL)
		clear(outR)
		r.Send(in, outL, outR)
		for i := range outL {
			maxL = max(maxL, abs32(outL[i]))
			maxR = max(maxR, abs32(outR[i]))
			if outL[i] != outR[i] {
				differ = true
			}
		}
	}
	if maxL < 0.001 || maxR < 0.001 {
		t.Fatal("expected reverb tail on both sides")
	}
	if !differ {
		t.Fatal("sides should decorrelate")
	}
}

func TestReverbGoesDormant(t *testing.T) {
	r := NewReverb(44100, 0.3, 0.5)
	in := make([]float32, 300)
	out := make([]float32, 300)
	in[0] = 1
	r.Send(in, out, out)
	in[0] = 0
	for i := 0; i < 2000 && !r.Dormant(); i++ {
		r.Send(in, out, out)
	}
	if !r.Dormant() {
		t.Fatal("tail should die out")
	}
	clear(out)
	r.Send(in, out, out)
	if peak(out) != 0 {
		t.Fatal("a dormant reverb adds nothing")
	}
}

func TestChorusFeedsReverbBus(t *testing.T) {
	c := NewChorus(44100, 10, 0.2, 2, 1)
	c.SetReverbSend(0.5)
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.05))
	}
	l := make([]float32, 1000)
	r := make([]float32, 1000)
	rev := make([]float32, 1000)
	c.Send(in, l, r, rev)
	if peak(l) < 0.1 || peak(r) < 0.1 {
		t.Fatal("chorus should produce output")
	}
	if peak(rev) == 0 {
		t.Fatal("chorus should send to reverb")
	}
}

func TestLimiterHoldsCeiling(t *testing.T) {
	lim := NewLimiter()
	left := make([]float32, 300)
	right := make([]float32, 300)
	for i := range left {
		left[i], right[i] = 2, -3
	}
	lim.ProcessBlock(left, right)
	if p := max(peak(left), peak(right)); p > limiterCeiling+1e-4 {
		t.Fatalf("peak %f exceeds ceiling", p)
	}

	for block := 0; block < 200; block++ {
		for i := range left {
			left[i], right[i] = 0.5, 0.5
		}
		lim.ProcessBlock(left, right)
	}
	if lim.Gain() != 1 {
		t.Fatalf("gain should recover to unity, got %f", lim.Gain())
	}
}

func TestDistortionBounded(t *testing.T) {
	d := NewDistortion(44100, 10, 0.5, 0)
	l, r := d.Process(0.5, 0.5)
	if math.Abs(float64(l)) > 0.5 || math.Abs(float64(r)) > 0.5 {
		t.Error("distortion output should be bounded by level")
	}
	if math.Abs(float64(l)) < 0.01 {
		t.Error("expected non-zero distortion output")
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	var out float32
	for i := 0; i < 1000; i++ {
		out, _ = c.Process(1, 1)
	}
	if out >= 0.6 {
		t.Errorf("compressor should reduce loud signals, got %f", out)
	}
}

func TestEQ3BandUnityGain(t *testing.T) {
	eq := NewEQ3Band(44100, 1, 1, 1, 300, 3000)
	for i := 0; i < 1000; i++ {
		eq.Process(0.5, 0.5)
	}
	l, r := eq.Process(0.5, 0.5)
	if math.Abs(float64(l)-0.5) > 1e-4 || math.Abs(float64(r)-0.5) > 1e-4 {
		t.Errorf("expected 0.5 with unity gains, got l=%f r=%f", l, r)
	}
}

func TestEQ5BandLowCut(t *testing.T) {
	eq := NewEQ5Band(44100)
	if !eq.Flat() {
		t.Fatal("new EQ should be flat")
	}
	left := make([]float32, 4000)
	right := make([]float32, 4000)
	for i := range left {
		left[i], right[i] = 1, 1
	}
	eq.SetGain(0, 0)
	eq.ProcessBlock(left, right)
	if last := left[len(left)-1]; last > 0.05 {
		t.Fatalf("DC should be removed with band 0 muted, got %f", last)
	}
	eq.SetGainDB(0, 0)
	if g := eq.Gain(0); math.Abs(float64(g)-1) > 1e-6 {
		t.Fatalf("0 dB gain = %f", g)
	}
}

func TestBuildChain(t *testing.T) {
	c, err := Build(44100, []Spec{
		{Name: "Distortion", Params: map[string]float64{"drive": 2}},
		{Name: "delay", Params: map[string]float64{"time_ms": 10, "feedback": 0}},
		{Name: "compressor"},
		{Name: "eq"},
		{Name: "reverb"},
		{Name: "chorus"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 6 {
		t.Fatalf("chain has %d effects", c.Len())
	}
	left := []float32{0.5, 0.5}
	right := []float32{0.5, 0.5}
	c.ProcessBlock(left, right)
	if left[0] == 0 || right[0] == 0 {
		t.Error("chain should produce output")
	}

	if _, err := Build(44100, []Spec{{Name: "flanger"}}); !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("unknown effect error = %v", err)
	}
}
