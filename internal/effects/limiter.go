package effects

import "github.com/viterin/vek/vek32"

// limiterCeiling is the highest output peak the limiter lets through.
const limiterCeiling = 0.99

// Limiter is the automatic gain control on the master bus. Gain drops at once
// when a block would clip and recovers over roughly ten blocks, ramping
// linearly within each recovering block.
type Limiter struct {
	gain     float32
	lastPeak float32
}

func NewLimiter() *Limiter {
	return &Limiter{gain: 1}
}

// Gain returns the gain applied at the end of the last block.
func (l *Limiter) Gain() float32 { return l.gain }

// ProcessBlock limits the stereo block in place.
func (l *Limiter) ProcessBlock(left, right []float32) {
	p := max(peak(left), peak(right))
	if p < silenceFloor && l.gain == 1 {
		l.lastPeak = 0
		return
	}
	look := max(p, l.lastPeak)
	l.lastPeak = p

	target := float32(1)
	if look > limiterCeiling {
		target = limiterCeiling / look
	}
	if target > l.gain {
		target = (target + l.gain*9) / 10
		if target > 0.999 {
			target = 1
		}
	}
	from := l.gain
	l.gain = target
	if target <= from {
		if target != 1 {
			vek32.MulNumber_Inplace(left, target)
			vek32.MulNumber_Inplace(right, target)
		}
		return
	}
	step := (target - from) / float32(len(left))
	g := from
	for i := range left {
		g += step
		left[i] *= g
		right[i] *= g
	}
}

func (l *Limiter) Reset() {
	l.gain = 1
	l.lastPeak = 0
}
