package bank

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/cbegin/softsynth-go/internal/model"
)

// sf2PercussionBank is the SoundFont bank number reserved for drum kits.
const sf2PercussionBank = 128

// LoadSF2 reads a SoundFont 2 file.
func LoadSF2(file string) (*Bank, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("load soundfont: %w", err)
	}
	defer f.Close()
	b, err := ReadSF2(f)
	if err != nil {
		return nil, fmt.Errorf("load soundfont %s: %w", file, err)
	}
	if b.Name == "" {
		b.Name = filepath.Base(file)
	}
	return b, nil
}

// ReadSF2 decodes a SoundFont 2 stream. Every preset becomes an instrument;
// every pairing of a preset zone with one of its instrument zones becomes a
// performer. Bank 128 holds the percussion kits. Samples share one decoded
// copy of the sample data.
func ReadSF2(r io.Reader) (*Bank, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	pcm := make([]float32, len(sf.WaveData))
	for i, s := range sf.WaveData {
		pcm[i] = float32(s) / 32768
	}
	data := model.NewWavetable(pcm, 44100)

	b := &Bank{}
	if sf.Info != nil {
		b.Name = sf.Info.BankName
	}
	seen := map[string]bool{}
	for _, preset := range sf.Presets {
		ins := &model.Instrument{Name: preset.Name, Program: int(preset.PatchNumber)}
		if int(preset.BankNumber) == sf2PercussionBank {
			ins.Percussion = true
		} else {
			ins.Bank = int(preset.BankNumber) << 7
		}
		for _, pr := range preset.Regions {
			if pr.Instrument == nil {
				continue
			}
			for _, ir := range pr.Instrument.Regions {
				if p := sf2Performer(data, pr, ir); p != nil {
					ins.Performers = append(ins.Performers, p)
				}
			}
		}
		if len(ins.Performers) == 0 {
			continue
		}
		if err := ins.Validate(); err != nil {
			return nil, fmt.Errorf("%w: preset %q: %w", ErrMalformed, preset.Name, err)
		}
		// The first preset wins when a file repeats a bank and program.
		if seen[ins.Key()] {
			continue
		}
		seen[ins.Key()] = true
		b.Instruments = append(b.Instruments, ins)
	}
	if len(b.Instruments) == 0 {
		return nil, fmt.Errorf("%w: soundfont has no playable presets", ErrMalformed)
	}
	return b, nil
}

// sf2Performer maps one preset zone and instrument zone onto a performer, or
// returns nil when their key or velocity ranges do not overlap.
func sf2Performer(data *model.Wavetable, pr *meltysynth.PresetRegion, ir *meltysynth.InstrumentRegion) *model.Performer {
	if ir.Sample == nil {
		return nil
	}
	p := &model.Performer{
		Name:           ir.Sample.Name,
		KeyFrom:        max(int(pr.GetKeyRangeStart()), int(ir.GetKeyRangeStart()), 0),
		KeyTo:          min(int(pr.GetKeyRangeEnd()), int(ir.GetKeyRangeEnd()), 127),
		VelFrom:        max(int(pr.GetVelocityRangeStart()), int(ir.GetVelocityRangeStart()), 0),
		VelTo:          min(int(pr.GetVelocityRangeEnd()), int(ir.GetVelocityRangeEnd()), 127),
		ExclusiveClass: int(ir.GetExclusiveClass()),
	}
	if p.KeyFrom > p.KeyTo || p.VelFrom > p.VelTo {
		return nil
	}

	start, end := int(ir.GetSampleStart()), int(ir.GetSampleEnd())
	if start < 0 || end > data.Len() || start >= end {
		return nil
	}
	w := data.Slice(start, end)
	w.SampleRate = float64(ir.Sample.SampleRate)
	if w.SampleRate <= 0 {
		return nil
	}
	switch int(ir.GetSampleModes()) {
	case 1:
		w.LoopType = model.LoopForward
	case 3:
		w.LoopType = model.LoopForward | model.LoopRelease
	}
	ls, le := int(ir.GetSampleStartLoop())-start, int(ir.GetSampleEndLoop())-start
	if w.LoopType != model.LoopOff && ls >= 0 && le <= w.Len() && ls < le {
		w.LoopStart, w.LoopLength = float64(ls), float64(le-ls)
	} else {
		w.LoopType = model.LoopOff
	}

	scale := float64(ir.GetScaleTuning())
	w.PitchCorrection = -float64(ir.GetRootKey())*scale +
		(float64(ir.GetCoarseTune())+float64(pr.GetCoarseTune()))*100 +
		float64(ir.GetFineTune()) + float64(pr.GetFineTune())
	w.Attenuation = (float64(ir.GetInitialAttenuation()) + float64(pr.GetInitialAttenuation())) * 10
	p.Oscillators = []*model.Wavetable{w}

	if scale != 100 {
		p.Connections = append(p.Connections,
			model.Connect(128*scale, model.DestPitch, model.NewSource(model.SrcKeynumber, model.MinToMax, model.Unipolar, model.Linear)))
	}
	p.Connections = append(p.Connections, sf2Envelope(ir)...)
	if hz := float64(ir.GetInitialFilterCutoffFrequency()); hz > 0 && hz < 19900 {
		p.Connections = append(p.Connections,
			model.Const(6900+1200*math.Log2(hz/440), model.DestCutoff),
			model.Const(float64(ir.GetInitialFilterQ())*10, model.DestQ))
	}
	if pan := float64(ir.GetPan()); pan != 0 {
		p.Connections = append(p.Connections, model.Const(pan*10, model.DestPan))
	}
	if rev := float64(ir.GetReverbEffectsSend()); rev > 0 {
		p.Connections = append(p.Connections, model.Const(rev*10, model.DestReverb))
	}
	if cho := float64(ir.GetChorusEffectsSend()); cho > 0 {
		p.Connections = append(p.Connections, model.Const(cho*10, model.DestChorus))
	}
	return p
}

// sf2Envelope converts the volume envelope. Stage times arrive in seconds and
// the sustain level as an attenuation in decibels.
func sf2Envelope(ir *meltysynth.InstrumentRegion) []model.ConnectionBlock {
	tc := func(sec float64) float64 {
		if sec <= 0.001 {
			return negInf
		}
		return timecents(sec)
	}
	sustain := min(max(1-float64(ir.GetSustainVolumeEnvelope())/96, 0), 1)
	return []model.ConnectionBlock{
		model.Const(tc(float64(ir.GetDelayVolumeEnvelope())), eg(model.EGDelay, 0)),
		model.Const(tc(float64(ir.GetAttackVolumeEnvelope())), eg(model.EGAttack, 0)),
		model.Const(tc(float64(ir.GetHoldVolumeEnvelope())), eg(model.EGHold, 0)),
		model.Const(tc(float64(ir.GetDecayVolumeEnvelope())), eg(model.EGDecay, 0)),
		model.Const(sustain*1000, eg(model.EGSustain, 0)),
		model.Const(tc(float64(ir.GetReleaseVolumeEnvelope())), eg(model.EGRelease, 0)),
	}
}
