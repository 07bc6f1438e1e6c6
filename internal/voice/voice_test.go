package voice

import (
	"math"
	"testing"

	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/performer"
)

const (
	testRate    = 44100
	testControl = 147
)

func lin(id model.Identifier) model.Source {
	return model.NewSource(id, model.MinToMax, model.Unipolar, model.Linear)
}

func bi(id model.Identifier) model.Source {
	return model.NewSource(id, model.MinToMax, model.Bipolar, model.Linear)
}

func testPerformer(conns ...model.ConnectionBlock) *performer.Compiled {
	data := make([]float32, 1000)
	for i := range data {
		data[i] = 0.5
	}
	w := model.NewWavetable(data, testRate)
	w.LoopType = model.LoopForward
	w.LoopLength = float64(len(data))
	w.SetRootKey(60, 0)
	p := model.NewPerformer(w)
	p.Connections = conns
	return performer.Compile(p)
}

// testControls returns channel controls at their reset values.
func testControls() *Controls {
	c := NewControls(NewMaster())
	c.CC[7] = 100.0 / 128
	c.CC[8] = 64.0 / 128
	c.CC[10] = 64.0 / 128
	c.CC[11] = 127.0 / 128
	for cc := 71; cc <= 78; cc++ {
		c.CC[cc] = 64.0 / 128
	}
	c.RPN[0] = 2.0 / 128
	c.RPN[1] = 0.5
	c.RPN[2] = 0.5
	return c
}

func testNote(p *performer.Compiled, c *Controls, id int64, ch, key int) Note {
	return Note{Channel: ch, Controls: c, Performer: p, ID: id, Key: key, Velocity: 100, GlideFrom: -1}
}

func testBuffers(n int) *Buffers {
	mk := func() []float32 { return make([]float32, n) }
	return &Buffers{
		Left: mk(), Right: mk(), Mono: mk(), Effect1: mk(), Effect2: mk(),
		DelayLeft: mk(), DelayRight: mk(), DelayMono: mk(), DelayEffect1: mk(), DelayEffect2: mk(),
	}
}

func (b *Buffers) clear() {
	for _, s := range [][]float32{b.Left, b.Right, b.Mono, b.Effect1, b.Effect2} {
		clear(s)
	}
}

func sameValue(a, b float64) bool {
	return a == b || math.Abs(a-b) < 1e-9
}

func TestResolvedValuesIgnoreBlockOrder(t *testing.T) {
	conns := []model.ConnectionBlock{
		model.Connect(50, model.DestPitch, lin(model.CC(1))),
		model.Const(-100, model.DestPitch),
		model.Connect(-200, model.DestGain, lin(model.SrcVelocity)),
		model.Connect(300, model.DestCutoff, bi(model.SrcLFO1)),
		model.Connect(400, model.DestReverb, lin(model.CC(16)), lin(model.SrcEG2)),
	}
	reversed := make([]model.ConnectionBlock, len(conns))
	for i, c := range conns {
		reversed[len(conns)-1-i] = c
	}

	run := func(conns []model.ConnectionBlock) *Voice {
		pool := NewPool(1, AllocDefault, testRate, testControl)
		c := testControls()
		pool.Play(0, testNote(testPerformer(conns...), c, 1, 0, 64))
		pool.Tick()
		c.CC[1] = 0.75
		c.CC[16] = 0.25
		v := &pool.Voices()[0]
		v.ControlChange(1)
		v.ControlChange(16)
		pool.Tick()
		pool.Tick()
		return v
	}
	a, b := run(conns), run(reversed)
	for slot := 0; slot < performer.NumSlots; slot++ {
		if !sameValue(a.Value(slot), b.Value(slot)) {
			t.Fatalf("slot %d differs: %f vs %f", slot, a.Value(slot), b.Value(slot))
		}
	}
	want := 60*100.0 + 4*100 + 50*0.75 - 100
	if got := a.Value(performer.SlotPitch); !sameValue(got, want) {
		t.Fatalf("pitch = %f, want %f", got, want)
	}
}

func TestControllerChangeMovesOnlyItsContribution(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	c := testControls()
	pool.Play(0, testNote(testPerformer(model.Connect(1000, model.DestPitch, lin(model.CC(1)))), c, 1, 0, 60))
	v := &pool.Voices()[0]
	base := v.Value(performer.SlotPitch)
	for _, x := range []float64{0.5, 0.25, 1, 0} {
		c.CC[1] = x
		v.ControlChange(1)
		if got := v.Value(performer.SlotPitch); !sameValue(got, base+1000*x) {
			t.Fatalf("cc1=%f: pitch %f, want %f", x, got, base+1000*x)
		}
	}
}

func TestSustainHoldsUntilPedalRelease(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	v := &pool.Voices()[0]

	v.NoteOff(true)
	if !v.On || !v.Sustain || v.KeyDown {
		t.Fatalf("pedal should hold the note: on=%v sustain=%v key=%v", v.On, v.Sustain, v.KeyDown)
	}
	v.ReleaseSustain()
	if v.On || v.Sustain {
		t.Fatal("pedal release should release the note")
	}
	if v.Value(performer.EGSlot(0, model.EGOn)) != 0 {
		t.Fatal("envelope gate should close")
	}
}

func TestSostenutoHoldsLatchedNote(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	v := &pool.Voices()[0]

	v.LatchSostenuto()
	v.NoteOff(false)
	if !v.On {
		t.Fatal("sostenuto should hold the note")
	}
	v.ReleaseSostenuto(false)
	if v.On {
		t.Fatal("releasing sostenuto should release the note")
	}
}

func TestRedampReopensGate(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	v := &pool.Voices()[0]
	v.NoteOff(false)
	v.Redamp()
	if !v.On || !v.Sustain {
		t.Fatal("redamp should hold a releasing note")
	}
	v.ReleaseSustain()
	if v.On {
		t.Fatal("note should release with the pedal")
	}
}

func TestRedampCatchesReleasingEnvelope(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	p := testPerformer(model.Const(0, model.ID(model.ObjEG, model.EGRelease, 0)))
	pool.Play(0, testNote(p, testControls(), 1, 0, 60))
	v := &pool.Voices()[0]
	pool.Tick()
	v.NoteOff(false)
	for i := 0; i < 3; i++ {
		pool.Tick()
	}
	if !v.Envelope(0).Releasing() {
		t.Fatal("note-off should start the release")
	}
	caught := v.Envelope(0).Out()
	v.Redamp()
	for i := 0; i < 20; i++ {
		pool.Tick()
	}
	if v.Envelope(0).Releasing() || pool.Active() != 1 {
		t.Fatal("redamped note should stay sustained")
	}
	if out := v.Envelope(0).Out(); out > caught || out < caught-1e-9 {
		t.Fatalf("sustained level %f, caught at %f", out, caught)
	}
}

func TestVoiceRendersCentredToMono(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	b := testBuffers(testRate / testControl)
	for i := 0; i < 3; i++ {
		b.clear()
		pool.Tick()
		pool.Render(b)
	}
	if b.Mono[len(b.Mono)-1] <= 0 {
		t.Fatalf("mono output should be positive, got %f", b.Mono[len(b.Mono)-1])
	}
	for i := range b.Left {
		if b.Left[i] != 0 || b.Right[i] != 0 {
			t.Fatal("a centred voice should only reach the mono bus")
		}
	}
}

func TestRenderUsesParametersFromLastTick(t *testing.T) {
	c := testControls()
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), c, 1, 0, 60))
	v := &pool.Voices()[0]
	b := testBuffers(testRate / testControl)
	for i := 0; i < 3; i++ {
		b.clear()
		pool.Tick()
		pool.Render(b)
	}
	last := len(b.Mono) - 1
	level := b.Mono[last]
	if level <= 0 {
		t.Fatalf("voice should sound, got %f", level)
	}

	c.CC[7] = 0
	v.ControlChange(7)
	b.clear()
	pool.Render(b)
	if got := b.Mono[last]; math.Abs(float64(got-level)) > 1e-4*float64(level) {
		t.Fatalf("render before the next tick played %f, want %f", got, level)
	}
	for i := 0; i < 2; i++ {
		b.clear()
		pool.Tick()
		pool.Render(b)
	}
	for i, s := range b.Mono {
		if s != 0 {
			t.Fatalf("sample %d = %f after volume went to zero", i, s)
		}
	}
}

func TestVoicePannedLeft(t *testing.T) {
	c := testControls()
	c.CC[10] = 0
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), c, 1, 0, 60))
	b := testBuffers(testRate / testControl)
	for i := 0; i < 3; i++ {
		b.clear()
		pool.Tick()
		pool.Render(b)
	}
	last := len(b.Left) - 1
	if b.Left[last] <= 0 || math.Abs(float64(b.Right[last])) > 1e-6 {
		t.Fatalf("hard-left voice: left=%f right=%f", b.Left[last], b.Right[last])
	}
}

func TestReleasedVoiceFreesItsSlot(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	b := testBuffers(testRate / testControl)
	pool.Tick()
	pool.Render(b)
	pool.Voices()[0].NoteOff(false)
	for i := 0; i < 4; i++ {
		pool.Tick()
		pool.Render(b)
	}
	if pool.Active() != 0 {
		t.Fatalf("voice should be free, state %v", pool.Voices()[0].State)
	}
}

func TestShutdownEndsVoice(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	pool.Play(0, testNote(testPerformer(), testControls(), 1, 0, 60))
	b := testBuffers(testRate / testControl)
	pool.Tick()
	pool.Voices()[0].Shutdown()
	for i := 0; i < 20 && pool.Active() > 0; i++ {
		pool.Tick()
		pool.Render(b)
	}
	if pool.Active() != 0 {
		t.Fatal("shut down voice should free its slot")
	}
}

func TestPortamentoGlidesToKey(t *testing.T) {
	c := testControls()
	c.PortamentoRate = 2
	pool := NewPool(1, AllocDefault, testRate, testControl)
	n := testNote(testPerformer(), c, 1, 0, 64)
	n.GlideFrom = 60
	pool.Play(0, n)
	v := &pool.Voices()[0]
	if !v.Portamento {
		t.Fatal("voice should glide")
	}
	pool.Tick()
	if got := v.Value(performer.SlotPitch); !sameValue(got, 6200) {
		t.Fatalf("pitch after one tick = %f, want 6200", got)
	}
	pool.Tick()
	pool.Tick()
	if got := v.Value(performer.SlotPitch); !sameValue(got, 6400) || v.Portamento {
		t.Fatalf("glide should settle at 6400, got %f", got)
	}
}
