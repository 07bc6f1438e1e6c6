package performer

import (
	"math"

	"github.com/cbegin/softsynth-go/internal/model"
)

var negInf = math.Inf(-1)

func src(id model.Identifier, dir model.Direction, pol model.Polarity, shape model.Shape) model.Source {
	return model.NewSource(id, dir, pol, shape)
}

func lin(id model.Identifier) model.Source {
	return src(id, model.MinToMax, model.Unipolar, model.Linear)
}

func bi(id model.Identifier) model.Source {
	return src(id, model.MinToMax, model.Bipolar, model.Linear)
}

func egID(variable, instance int) model.Identifier {
	return model.ID(model.ObjEG, variable, instance)
}

func lfoID(variable, instance int) model.Identifier {
	return model.ID(model.ObjLFO, variable, instance)
}

// rpn0Cents converts the pitch-bend range RPN (MSB semitones, LSB cents) to cents.
var rpn0Cents = model.TransformFunc(func(v float64) float64 {
	n := int(v * 16384)
	return float64((n>>7)*100 + n&127)
})

// egShutdown is the default fast release used when a voice is stolen (15 ms).
var egShutdown = 1200.0 * math.Log(0.015) / math.Ln2

// Defaults returns the GM2 baseline connection library injected into every performer
// that does not disable it.
func Defaults() []model.ConnectionBlock {
	fine := model.ID(model.ObjMaster, model.MasterFineTuning, 0)
	coarse := model.ID(model.ObjMaster, model.MasterCoarseTuning, 0)
	return []model.ConnectionBlock{
		model.Connect(1, egID(model.EGOn, 0), lin(model.SrcNoteOn)),
		model.Connect(1, egID(model.EGOn, 1), lin(model.SrcNoteOn)),
		model.Connect(1, model.DestActive, lin(egID(model.EGActive, 0))),
		model.Connect(-960, model.DestGain, src(model.SrcEG1, model.MaxToMin, model.Unipolar, model.Linear)),
		model.Connect(-960, model.DestGain, src(model.SrcVelocity, model.MaxToMin, model.Unipolar, model.Concave)),
		model.Connect(1, model.DestPitch, bi(model.SrcPitchBend), model.Source{ID: model.RPN(0), Transform: rpn0Cents}),
		model.Connect(12800, model.DestPitch, lin(model.SrcKeynumber)),
		model.Connect(-960, model.DestGain, src(model.CC(7), model.MaxToMin, model.Unipolar, model.Concave)),
		model.Connect(1000, model.DestBalance, lin(model.CC(8))),
		model.Connect(1000, model.DestPan, lin(model.CC(10))),
		model.Connect(-960, model.DestGain, src(model.CC(11), model.MaxToMin, model.Unipolar, model.Concave)),
		model.Connect(1000, model.DestReverb, lin(model.CC(91))),
		model.Connect(1000, model.DestChorus, lin(model.CC(93))),
		model.Connect(200, model.DestQ, bi(model.CC(71))),
		model.Connect(9600, model.DestCutoff, bi(model.CC(74))),
		model.Connect(6000, egID(model.EGRelease2, 0), bi(model.CC(72))),
		model.Connect(2000, egID(model.EGAttack2, 0), bi(model.CC(73))),
		model.Connect(6000, egID(model.EGDecay2, 0), bi(model.CC(75))),
		model.Connect(-50, model.DestGain, src(model.CC(67), model.MinToMax, model.Unipolar, model.Switch)),
		model.Connect(-2400, model.DestCutoff, src(model.CC(67), model.MinToMax, model.Unipolar, model.Switch)),
		model.Connect(100, model.DestPitch, bi(model.RPN(1))),
		model.Connect(12800, model.DestPitch, bi(model.RPN(2))),
		model.Connect(100, model.DestPitch, bi(fine)),
		model.Connect(12800, model.DestPitch, bi(coarse)),
		model.Const(13500, model.DestCutoff),
		model.Const(negInf, egID(model.EGDelay, 0)),
		model.Const(negInf, egID(model.EGAttack, 0)),
		model.Const(negInf, egID(model.EGHold, 0)),
		model.Const(negInf, egID(model.EGDecay, 0)),
		model.Const(1000, egID(model.EGSustain, 0)),
		model.Const(negInf, egID(model.EGRelease, 0)),
		model.Const(egShutdown, egID(model.EGShutdown, 0)),
		model.Const(negInf, egID(model.EGDelay, 1)),
		model.Const(negInf, egID(model.EGAttack, 1)),
		model.Const(negInf, egID(model.EGHold, 1)),
		model.Const(negInf, egID(model.EGDecay, 1)),
		model.Const(1000, egID(model.EGSustain, 1)),
		model.Const(negInf, egID(model.EGRelease, 1)),
		model.Const(-8.51318, lfoID(model.LFOFreq, 0)),
		model.Const(negInf, lfoID(model.LFODelay, 0)),
		model.Const(-8.51318, lfoID(model.LFOFreq, 1)),
		model.Const(negInf, lfoID(model.LFODelay, 1)),
	}
}

// extendModulation scales every modulation-wheel routing by the modulation depth
// range (RPN 5), adds a vibrato routing when none exists and mirrors the wheel
// routing onto channel and poly pressure unless those are already routed.
func extendModulation(conns []model.ConnectionBlock, put func(model.ConnectionBlock)) []model.ConnectionBlock {
	wheel := model.CC(1)
	depth := model.Source{ID: model.RPN(5)}
	found := false
	for i, c := range conns {
		if len(c.Sources) > 1 && c.HasSource(wheel) {
			found = true
			ext := c
			ext.Sources = append(append([]model.Source(nil), c.Sources...), depth)
			ext.Scale = c.Scale * 256
			conns[i] = ext
		}
	}
	if !found {
		conns = append(conns, model.Connect(50*256, model.DestPitch, bi(model.SrcLFO1), lin(wheel), depth))
	}

	var wheelConn *model.ConnectionBlock
	wheelIx := 0
	chanSet, polySet := false, false
	for i := range conns {
		for j, s := range conns[i].Sources {
			if s.ID == wheel {
				wheelConn = &conns[i]
				wheelIx = j
			}
			if s.ID == model.SrcChannelPressure {
				chanSet = true
			}
			if s.ID == model.SrcPolyPressure {
				polySet = true
			}
		}
	}
	if wheelConn != nil {
		mirror := func(id model.Identifier) {
			mc := *wheelConn
			mc.Sources = append([]model.Source(nil), wheelConn.Sources...)
			mc.Sources[wheelIx] = model.Source{ID: id}
			put(mc)
		}
		if !chanSet {
			mirror(model.SrcChannelPressure)
		}
		if !polySet {
			mirror(model.SrcPolyPressure)
		}
	}
	return conns
}

// vibrato adds the sound-controller routings for vibrato rate (cc76), depth (cc77)
// and delay (cc78) onto the LFO already driving pitch, or LFO 2 when there is none.
func vibrato(conns []model.ConnectionBlock, put func(model.ConnectionBlock)) {
	var vib *model.ConnectionBlock
	for i := range conns {
		c := &conns[i]
		if len(c.Sources) == 0 || c.Sources[0].ID.Object != model.ObjLFO || c.Destination != model.DestPitch {
			continue
		}
		if vib == nil {
			vib = c
			continue
		}
		if len(vib.Sources) > len(c.Sources) {
			vib = c
		} else if vib.Sources[0].ID.Instance < 1 && vib.Sources[0].ID.Instance > c.Sources[0].ID.Instance {
			vib = c
		}
	}
	instance := 1
	scale := 0.0
	if vib != nil {
		instance = vib.Sources[0].ID.Instance
		scale = vib.Scale
	}
	put(model.Connect(2000, lfoID(model.LFODelay2, instance), bi(model.CC(78))))
	depth := model.TransformFunc(func(v float64) float64 {
		v = (v*2 - 1) * 600
		switch {
		case scale == 0:
			return v
		case scale > 0:
			if v < -scale {
				v = -scale
			}
			return v
		default:
			if v < scale {
				v = -scale
			}
			return -v
		}
	})
	put(model.Connect(1, model.DestPitch, model.Source{ID: model.ID(model.ObjLFO, model.VarNone, instance)},
		model.Source{ID: model.CC(77), Transform: depth}))
	put(model.Connect(2400, lfoID(model.LFOFreq, instance), bi(model.CC(76))))
}
