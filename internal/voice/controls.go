package voice

import "github.com/cbegin/softsynth-go/internal/model"

// Master holds the synthesizer-wide controls read by master.* sources.
// Values are normalised to [0, 1]; tuning and balance centre on 0.5.
type Master struct {
	FineTuning   float64
	CoarseTuning float64
	Volume       float64
	Balance      float64
}

// NewMaster returns master controls at their power-on values.
func NewMaster() *Master {
	return &Master{FineTuning: 0.5, CoarseTuning: 0.5, Volume: 1, Balance: 0.5}
}

func (m *Master) value(variable int) float64 {
	if m == nil {
		return 0
	}
	switch variable {
	case model.MasterFineTuning:
		return m.FineTuning
	case model.MasterCoarseTuning:
		return m.CoarseTuning
	case model.MasterVolume:
		return m.Volume
	case model.MasterBalance:
		return m.Balance
	}
	return 0
}

// Per-note controller numbers for fine and coarse tuning. They address the
// pitch RPNs of a single key.
const (
	KeyFineTuning   = 120
	KeyCoarseTuning = 121
)

// KeyControllers are per-note controller overrides, set through the GM2
// per-note NRPNs. Active marks which entries apply.
type KeyControllers struct {
	Active [128]bool
	Value  [128]float64
}

// Tuning maps each key to a pitch in cents (key*100 in equal temperament).
type Tuning [128]float64

// EqualTemperament returns the default tuning.
func EqualTemperament() *Tuning {
	var t Tuning
	for i := range t {
		t[i] = float64(i) * 100
	}
	return &t
}

// Controls is the live controller state of one MIDI channel. The channel owns it;
// voices hold a pointer and read it whenever a block is re-evaluated.
// Values are normalised: controllers v/128, RPN/NRPN and pitch bend v/16384.
type Controls struct {
	CC              [128]float64
	RPN             map[int]float64
	NRPN            map[int]float64
	Bend            float64
	ChannelPressure float64
	PolyPressure    [128]float64

	// KeyBased is indexed by key; nil entries have no overrides.
	KeyBased    [128]*KeyControllers
	HasKeyBased bool

	Tuning *Tuning
	// PortamentoRate is the glide speed in keys per control tick.
	PortamentoRate float64
	Master         *Master
}

// NewControls returns an empty control set sharing master.
func NewControls(master *Master) *Controls {
	return &Controls{
		RPN:            map[int]float64{},
		NRPN:           map[int]float64{},
		Bend:           0.5,
		Tuning:         EqualTemperament(),
		PortamentoRate: 1,
		Master:         master,
	}
}

// SetKeyController sets controller cc for key only; a negative value removes the override.
func (c *Controls) SetKeyController(key, cc, value int) {
	kc := c.KeyBased[key]
	if kc == nil {
		if value < 0 {
			return
		}
		kc = &KeyControllers{}
		c.KeyBased[key] = kc
	}
	if value < 0 {
		kc.Active[cc] = false
		return
	}
	kc.Active[cc] = true
	kc.Value[cc] = float64(value) / 128
	c.HasKeyBased = true
}

// ClearKeyControllers drops every per-note override.
func (c *Controls) ClearKeyControllers() {
	c.KeyBased = [128]*KeyControllers{}
	c.HasKeyBased = false
}

// keyBased applies a per-note override for controller kc on key to raw.
// Pan and effect sends replace the channel value; the rest offset it around 64.
func (c *Controls) keyBased(key, kc int, raw float64) float64 {
	k := c.KeyBased[key]
	if k == nil || !k.Active[kc] {
		return raw
	}
	v := k.Value[kc]
	switch kc {
	case 10, 91, 93:
		return v
	}
	raw += v*2 - 1
	if raw > 1 {
		return 1
	}
	if raw < 0 {
		return 0
	}
	return raw
}
