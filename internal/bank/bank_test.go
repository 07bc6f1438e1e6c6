package bank

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/performer"
)

func TestDefaultBank(t *testing.T) {
	b := Default()
	seen := map[string]bool{}
	var drums *model.Instrument
	for _, ins := range b.Instruments {
		if err := ins.Validate(); err != nil {
			t.Fatal(err)
		}
		if seen[ins.Key()] {
			t.Fatalf("duplicate %s", ins.Key())
		}
		seen[ins.Key()] = true
		if ins.Percussion {
			drums = ins
		}
		performer.CompileInstrument(ins)
	}
	if !seen["0.0"] {
		t.Fatal("default bank needs program 0")
	}
	if drums == nil || drums.Program != 0 {
		t.Fatal("default bank needs a percussion kit at program 0")
	}
}

func TestBuiltinWaveforms(t *testing.T) {
	for _, name := range []string{WaveSine, WaveTriangle, WaveSaw, WaveSquare, WaveNoise} {
		t.Run(name, func(t *testing.T) {
			w := Builtin(name)
			if w == nil {
				t.Fatal("missing waveform")
			}
			if w.LoopType != model.LoopForward || int(w.LoopLength) != w.Len() {
				t.Fatal("builtin waveforms loop over the whole table")
			}
			var peak float32
			for _, s := range w.Samples() {
				peak = max(peak, s, -s)
			}
			if peak == 0 || peak > 0.5 {
				t.Fatalf("peak %f", peak)
			}
		})
	}
	if Builtin("organ") != nil {
		t.Fatal("unknown waveform should be nil")
	}
}

const yamlBank = `
name: test
instruments:
  - name: Lead
    bank_msb: 1
    bank_lsb: 2
    program: 5
    performers:
      - name: upper
        keys: [60, 127]
        velocities: [10]
        exclusive_class: 3
        samples:
          - builtin: saw
            fine_tune: 5
        envelope:
          attack: 0.5
          sustain: 0.25
          release: 1
        connections:
          - dest: osc.pitch
            scale: 50
            sources:
              - id: midi_cc.1
                polarity: bipolar
                shape: concave
              - id: lfo:1
`

func TestParseYAML(t *testing.T) {
	d, err := Parse([]byte(yamlBank), false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Build(fstest.MapFS{})
	if err != nil {
		t.Fatal(err)
	}
	ins := b.Instruments[0]
	if ins.Bank != 1<<7|2 || ins.Program != 5 || ins.Percussion {
		t.Fatalf("instrument at %s", ins.Key())
	}
	p := ins.Performers[0]
	if p.KeyFrom != 60 || p.KeyTo != 127 || p.VelFrom != 10 || p.VelTo != 10 || p.ExclusiveClass != 3 {
		t.Fatalf("performer ranges %+v", p)
	}
	w := p.Oscillators[0]
	if got := w.PitchCorrection; got != -6900+5 {
		t.Fatalf("pitch correction %f", got)
	}
	var attack, sustain *model.ConnectionBlock
	var cc1 *model.ConnectionBlock
	for i := range p.Connections {
		c := &p.Connections[i]
		switch {
		case c.Destination == model.ID(model.ObjEG, model.EGAttack, 0):
			attack = c
		case c.Destination == model.ID(model.ObjEG, model.EGSustain, 0):
			sustain = c
		case c.HasSource(model.CC(1)):
			cc1 = c
		}
	}
	if attack == nil || math.Abs(attack.Scale-1200*math.Log2(0.5)) > 1e-9 {
		t.Fatal("attack should be 0.5 s in timecents")
	}
	if sustain == nil || sustain.Scale != 250 {
		t.Fatal("sustain should be 25 %")
	}
	if cc1 == nil || cc1.Destination != model.DestPitch || cc1.Scale != 50 || len(cc1.Sources) != 2 {
		t.Fatal("connection not decoded")
	}
	want := model.Transform{Polarity: model.Bipolar, Shape: model.Concave}
	if cc1.Sources[0].Transform != want {
		t.Fatalf("transform %+v", cc1.Sources[0].Transform)
	}
	if cc1.Sources[1].ID != model.SrcLFO2 {
		t.Fatalf("second source %v", cc1.Sources[1].ID)
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{"name":"j","instruments":[{"name":"Kit","program":0,"percussion":true,
		"performers":[{"keys":[36],"samples":[{"builtin":"noise","loop":"off"}]}]}]}`)
	d, err := Parse(data, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Build(fstest.MapFS{})
	if err != nil {
		t.Fatal(err)
	}
	ins := b.Instruments[0]
	if ins.Key() != "p.0.0" {
		t.Fatalf("key %s", ins.Key())
	}
	if ins.Performers[0].Oscillators[0].LoopType != model.LoopOff {
		t.Fatal("loop off should override the builtin loop")
	}
}

func wavBytes(t *testing.T, n int) []byte {
	t.Helper()
	frames := make([]float32, 2*n)
	for i := range frames {
		frames[i] = 0.5
	}
	var buf bytes.Buffer
	if err := WriteWAV(&buf, frames, 22050); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const wavBank = `
instruments:
  - name: Sampled
    program: 1
    performers:
      - keys: [0, 59]
        samples:
          - file: samples/tone.wav
            root_key: 48
            loop: forward
            loop_start: 100
            loop_end: 300
      - keys: [60, 127]
        samples:
          - file: samples/tone.wav
            start: 50
            loop: release
`

func TestBuildWAVSamples(t *testing.T) {
	fsys := fstest.MapFS{"samples/tone.wav": {Data: wavBytes(t, 400)}}
	d, err := Parse([]byte(wavBank), false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Build(fsys)
	if err != nil {
		t.Fatal(err)
	}
	lo := b.Instruments[0].Performers[0].Oscillators[0]
	hi := b.Instruments[0].Performers[1].Oscillators[0]
	if lo.SampleRate != 22050 || lo.Len() != 400 {
		t.Fatalf("decoded %d samples at %f Hz", lo.Len(), lo.SampleRate)
	}
	if math.Abs(float64(lo.Samples()[10])-0.5) > 1e-3 {
		t.Fatalf("stereo should average to mono, got %f", lo.Samples()[10])
	}
	if lo.LoopStart != 100 || lo.LoopLength != 200 || lo.PitchCorrection != -4800 {
		t.Fatalf("loop %f+%f correction %f", lo.LoopStart, lo.LoopLength, lo.PitchCorrection)
	}
	if hi.Len() != 350 || hi.LoopType != model.LoopForward|model.LoopRelease || hi.LoopLength != 350 {
		t.Fatalf("sliced sample %d loop %v/%f", hi.Len(), hi.LoopType, hi.LoopLength)
	}
	if &lo.Samples()[50] != &hi.Samples()[0] {
		t.Fatal("performers should share the decoded file")
	}
}

func TestBuildErrors(t *testing.T) {
	fsys := fstest.MapFS{"a.wav": {Data: wavBytes(t, 10)}}
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown field", "instruments:\n  - name: x\n    colour: red\n", ErrMalformed},
		{"no performers", "instruments:\n  - name: x\n", model.ErrNoPerformers},
		{"bad identifier", "instruments:\n  - performers:\n      - samples: [{builtin: sine}]\n        connections: [{dest: osc.volume}]\n", ErrMalformed},
		{"unknown builtin", "instruments:\n  - performers:\n      - samples: [{builtin: organ}]\n", ErrMalformed},
		{"two sources named", "instruments:\n  - performers:\n      - samples: [{builtin: sine, file: a.wav}]\n", ErrMalformed},
		{"missing file", "instruments:\n  - performers:\n      - samples: [{file: b.wav}]\n", fs.ErrNotExist},
		{"bad loop", "instruments:\n  - performers:\n      - samples: [{file: a.wav, loop: sideways}]\n", ErrMalformed},
		{"loop past end", "instruments:\n  - performers:\n      - samples: [{file: a.wav, loop: forward, loop_end: 20}]\n", ErrMalformed},
		{"key range", "instruments:\n  - performers:\n      - keys: [1, 2, 3]\n        samples: [{builtin: sine}]\n", ErrMalformed},
		{"duplicate", "instruments:\n  - performers: [{samples: [{builtin: sine}]}]\n  - performers: [{samples: [{builtin: saw}]}]\n", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse([]byte(tt.doc), false)
			if err == nil {
				_, err = d.Build(fsys)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "samples"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "samples", "tone.wav"), wavBytes(t, 400), 0o644); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "bank.yaml")
	if err := os.WriteFile(file, []byte(wavBank), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Instruments) != 1 || len(b.Instruments[0].Performers) != 2 {
		t.Fatal("bank not loaded")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing bank error = %v", err)
	}
}
