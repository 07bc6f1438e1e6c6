package performer

import (
	"math"
	"testing"

	"github.com/cbegin/softsynth-go/internal/model"
)

func testPerformer(conns ...model.ConnectionBlock) *model.Performer {
	p := model.NewPerformer(model.NewWavetable(make([]float32, 16), 44100))
	p.Connections = conns
	return p
}

func findBlocks(blocks []model.ConnectionBlock, dest model.Identifier, source model.Identifier) []model.ConnectionBlock {
	var out []model.ConnectionBlock
	for _, b := range blocks {
		if b.Destination == dest && b.HasSource(source) {
			out = append(out, b)
		}
	}
	return out
}

func TestDefaultsLibrarySize(t *testing.T) {
	if n := len(Defaults()); n != 42 {
		t.Fatalf("default library has %d blocks, want 42", n)
	}
}

func TestMergeInstrumentOverridesDefault(t *testing.T) {
	p := testPerformer(model.Connect(-480, model.DestGain,
		model.NewSource(model.CC(7), model.MaxToMin, model.Unipolar, model.Linear)))
	merged := Merge(p)
	got := findBlocks(merged, model.DestGain, model.CC(7))
	if len(got) != 1 {
		t.Fatalf("expected exactly one cc7 gain block, got %d", len(got))
	}
	if got[0].Scale != -480 {
		t.Fatalf("instrument block should win, scale=%f", got[0].Scale)
	}
	if len(findBlocks(merged, model.DestPan, model.CC(10))) != 1 {
		t.Fatal("untouched default (cc10 pan) should remain")
	}
}

func TestMergeWithoutDefaults(t *testing.T) {
	p := testPerformer(model.Const(100, model.DestPitch))
	p.DisableDefaults = true
	merged := Merge(p)
	if len(merged) != 1 {
		t.Fatalf("expected only the performer block, got %d", len(merged))
	}
}

func TestModulationWheelInjection(t *testing.T) {
	merged := Merge(testPerformer())
	wheel := findBlocks(merged, model.DestPitch, model.CC(1))
	if len(wheel) != 1 {
		t.Fatalf("expected injected vibrato wheel block, got %d", len(wheel))
	}
	w := wheel[0]
	if !w.HasSource(model.RPN(5)) || !w.HasSource(model.SrcLFO1) {
		t.Fatalf("wheel block should be lfo x cc1 x rpn5: %s", w.Key())
	}
	if w.Scale != 50*256 {
		t.Fatalf("scale = %f", w.Scale)
	}
	if len(findBlocks(merged, model.DestPitch, model.SrcChannelPressure)) != 1 {
		t.Fatal("channel pressure should mirror the wheel routing")
	}
	if len(findBlocks(merged, model.DestPitch, model.SrcPolyPressure)) != 1 {
		t.Fatal("poly pressure should mirror the wheel routing")
	}
	if len(findBlocks(merged, model.DestPitch, model.CC(77))) != 1 {
		t.Fatal("vibrato depth routing missing")
	}
}

func TestExistingWheelRoutingIsScaledByDepth(t *testing.T) {
	p := testPerformer(model.Connect(30, model.DestCutoff,
		model.NewSource(model.SrcLFO2, model.MinToMax, model.Bipolar, model.Linear),
		model.NewSource(model.CC(1), model.MinToMax, model.Unipolar, model.Linear)))
	merged := Merge(p)
	got := findBlocks(merged, model.DestCutoff, model.CC(1))
	if len(got) != 1 || got[0].Scale != 30*256 || !got[0].HasSource(model.RPN(5)) {
		t.Fatalf("existing wheel routing not extended: %+v", got)
	}
	if len(findBlocks(merged, model.DestPitch, model.CC(1))) != 0 {
		t.Fatal("no fallback vibrato expected when the wheel is already routed")
	}
}

func TestCompileOrdersNoteOnBlocksFirst(t *testing.T) {
	p := testPerformer(model.Const(60.0/128, model.ID(model.ObjNoteOn, model.NoteOnKeynumber, 0)))
	cp := Compile(p)
	if !cp.ForcedKeynumber || cp.ForcedVelocity {
		t.Fatalf("forced flags: key=%v vel=%v", cp.ForcedKeynumber, cp.ForcedVelocity)
	}
	if cp.NoteOnBlocks != 1 || cp.Blocks[0].Dest != SlotKey {
		t.Fatalf("noteon block should be first, got dest %d", cp.Blocks[0].Dest)
	}
}

func TestCompileIndexTables(t *testing.T) {
	cp := Compile(testPerformer())
	if len(cp.CC[7]) == 0 || len(cp.CC[11]) == 0 || len(cp.CC[1]) == 0 {
		t.Fatal("cc7/cc11/cc1 should have fast-path entries")
	}
	if len(cp.MIDI[MIDIPitch]) == 0 || len(cp.MIDI[MIDINoteOn]) != 2 {
		t.Fatalf("midi index: pitch=%v noteon=%v", cp.MIDI[MIDIPitch], cp.MIDI[MIDINoteOn])
	}
	if len(cp.RPN[0]) == 0 || len(cp.RPN[5]) == 0 {
		t.Fatal("rpn 0 and rpn 5 should be indexed")
	}
	for _, ix := range cp.CC[7] {
		if cp.Blocks[ix].Dest != SlotMixer+model.MixerGain {
			t.Fatalf("cc7 block %d routes to slot %d", ix, cp.Blocks[ix].Dest)
		}
	}
	egGain := false
	for _, ix := range cp.Tick {
		b := cp.Blocks[ix]
		if b.Sources[0].Kind == RefEG && b.Dest == SlotMixer+model.MixerGain {
			egGain = true
		}
	}
	if !egGain {
		t.Fatal("eg -> gain should be re-evaluated every tick")
	}
}

func TestRPN0TransformCents(t *testing.T) {
	v := float64(2<<7|50) / 16384
	if got := rpn0Cents.Transform(v); math.Abs(got-250) > 1e-9 {
		t.Fatalf("rpn0 = %f, want 250", got)
	}
}

func TestDestSlotUnknown(t *testing.T) {
	if DestSlot(model.ID(model.ObjEG, model.EGAttack, 5)) != -1 {
		t.Fatal("eg instance 5 has no slot")
	}
	if DestSlot(model.DestPitch) != SlotPitch {
		t.Fatal("pitch slot")
	}
}
