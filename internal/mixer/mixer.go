// Package mixer runs the control tick: it dispatches scheduled MIDI messages,
// advances every voice, renders them into the channel buffers, applies the
// shared send effects and master gain, and hands interleaved stereo frames to
// the output stream. After a few silent ticks it stops ticking and streams
// zeros until activity resumes.
package mixer

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/softsynth-go/internal/channel"
	"github.com/cbegin/softsynth-go/internal/effects"
	"github.com/cbegin/softsynth-go/internal/voice"
)

// silentTicks is the number of silent ticks after which the mixer idles.
const silentTicks = 5

// silenceFloor is the peak level treated as silence.
const silenceFloor = 1e-6

// Host delivers scheduled messages and exposes the channels for the
// active-sensing watchdog. Both are called with the control mutex held.
type Host interface {
	Channels() []*channel.Channel
	DispatchLocked(msg midi.Message)
}

type Config struct {
	SampleRate  float64
	ControlRate float64
	Reverb      bool
	Chorus      bool
	AGC         bool
	// Inserts run on the final stereo signal after the master EQ.
	Inserts *effects.Chain
	Logger  *slog.Logger
}

type event struct {
	at  int64
	msg midi.Message
}

// Mixer owns the channel buffers and the shared effects. Process is called
// from a single audio goroutine; everything else follows the control mutex.
type Mixer struct {
	mu     *sync.Mutex
	host   Host
	pool   *voice.Pool
	master *voice.Master
	log    *slog.Logger

	frames int
	rate   float64
	bufs   voice.Buffers

	reverb   *effects.Reverb
	chorus   *effects.Chorus
	limiter  *effects.Limiter
	eq       *effects.EQ5Band
	inserts  *effects.Chain
	reverbOn atomic.Bool
	chorusOn atomic.Bool
	agcOn    atomic.Bool

	// guarded by mu
	queue         []event
	eventDelay    int
	samplePos     int64
	activeSensing bool
	lastActivity  int64

	lastVolL, lastVolR float64
	silentCount        int
	silent             atomic.Bool
	silentFrames       atomic.Int64

	out    []float32
	outPos int
}

// New creates a mixer over pool. mu is the control mutex shared with the channels.
func New(cfg Config, mu *sync.Mutex, host Host, pool *voice.Pool, master *voice.Master) *Mixer {
	frames := int(cfg.SampleRate / cfg.ControlRate)
	sr := int(cfg.SampleRate)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mixer{
		mu:       mu,
		host:     host,
		pool:     pool,
		master:   master,
		log:      logger,
		frames:   frames,
		rate:     cfg.SampleRate,
		reverb:   effects.NewReverb(sr, 0.6, 0.75),
		chorus:   effects.NewChorus(sr, 12, 0.25, 3, 0.6),
		limiter:  effects.NewLimiter(),
		eq:       effects.NewEQ5Band(sr),
		inserts:  cfg.Inserts,
		lastVolL: 1,
		lastVolR: 1,
		out:      make([]float32, frames*2),
	}
	m.outPos = len(m.out)
	m.chorus.SetReverbSend(0.1)
	m.reverbOn.Store(cfg.Reverb)
	m.chorusOn.Store(cfg.Chorus)
	m.agcOn.Store(cfg.AGC)
	if m.inserts == nil {
		m.inserts = effects.NewChain()
	}
	b := &m.bufs
	for _, p := range []*[]float32{
		&b.Left, &b.Right, &b.Mono, &b.Effect1, &b.Effect2,
		&b.DelayLeft, &b.DelayRight, &b.DelayMono, &b.DelayEffect1, &b.DelayEffect2,
	} {
		*p = make([]float32, frames)
	}
	return m
}

// Frames returns the number of frames rendered per tick.
func (m *Mixer) Frames() int { return m.frames }

// EQ returns the master equaliser. Its gains may be changed at any time.
func (m *Mixer) EQ() *effects.EQ5Band { return m.eq }

func (m *Mixer) SetReverb(on bool) { m.reverbOn.Store(on) }
func (m *Mixer) SetChorus(on bool) { m.chorusOn.Store(on) }
func (m *Mixer) SetAGC(on bool)    { m.agcOn.Store(on) }

// Silent reports whether the mixer is idling on the synthetic silence path.
func (m *Mixer) Silent() bool { return m.silent.Load() }

// SamplePosition returns the frame position of the next tick.
func (m *Mixer) SamplePosition() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samplePos + m.silentFrames.Load()
}

// Schedule queues msg for dispatch at frame position at. Messages at or
// before the current position play on the next tick with no delay.
func (m *Mixer) Schedule(at int64, msg midi.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.Search(len(m.queue), func(i int) bool { return m.queue[i].at > at })
	m.queue = append(m.queue, event{})
	copy(m.queue[i+1:], m.queue[i:])
	m.queue[i] = event{at: at, msg: msg}
	m.ActivityLocked()
}

// Pending returns the number of scheduled messages not yet dispatched.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ClearLocked drops every scheduled message.
func (m *Mixer) ClearLocked() { m.queue = m.queue[:0] }

// ActivityLocked wakes the mixer from the silence path and restarts the
// active-sensing timer.
func (m *Mixer) ActivityLocked() {
	m.silent.Store(false)
	m.lastActivity = m.samplePos + m.silentFrames.Load()
}

// EventDelayLocked returns the frame offset within the current tick of the
// message being dispatched.
func (m *Mixer) EventDelayLocked() int { return m.eventDelay }

// SetActiveSensingLocked arms or disarms the active-sensing watchdog.
func (m *Mixer) SetActiveSensingLocked(on bool) {
	m.activeSensing = on
	m.ActivityLocked()
}

// ActiveSensingLocked reports whether the watchdog is armed.
func (m *Mixer) ActiveSensingLocked() bool { return m.activeSensing }

// Process fills dst with interleaved stereo frames.
func (m *Mixer) Process(dst []float32) {
	for len(dst) > 0 {
		if m.outPos == len(m.out) {
			if m.silent.Load() {
				clear(dst)
				m.silentFrames.Add(int64(len(dst) / 2))
				return
			}
			m.tick()
			m.outPos = 0
		}
		n := copy(dst, m.out[m.outPos:])
		m.outPos += n
		dst = dst[n:]
	}
}

func (m *Mixer) tick() {
	b := &m.bufs
	clear(b.Left)
	clear(b.Right)
	clear(b.Mono)
	clear(b.Effect1)
	clear(b.Effect2)
	swapDelay(&b.Left, &b.DelayLeft)
	swapDelay(&b.Right, &b.DelayRight)
	swapDelay(&b.Mono, &b.DelayMono)
	swapDelay(&b.Effect1, &b.DelayEffect1)
	swapDelay(&b.Effect2, &b.DelayEffect2)

	volL, volR := m.control()
	m.pool.Render(b)

	if peak(b.Mono) > 0 {
		vek32.Add_Inplace(b.Left, b.Mono)
		vek32.Add_Inplace(b.Right, b.Mono)
	}
	if m.chorusOn.Load() {
		m.chorus.Send(b.Effect2, b.Left, b.Right, b.Effect1)
	}
	if m.reverbOn.Load() {
		m.reverb.Send(b.Effect1, b.Left, b.Right)
	}

	m.applyVolume(volL, volR)

	if peak(b.Left) < silenceFloor && peak(b.Right) < silenceFloor {
		m.mu.Lock()
		if len(m.queue) == 0 {
			if m.silentCount++; m.silentCount > silentTicks {
				m.silentCount = 0
				m.silent.Store(true)
			}
		}
		m.mu.Unlock()
	} else {
		m.silentCount = 0
	}

	if m.agcOn.Load() {
		m.limiter.ProcessBlock(b.Left, b.Right)
	}
	m.eq.ProcessBlock(b.Left, b.Right)
	m.inserts.ProcessBlock(b.Left, b.Right)

	for i := range b.Left {
		m.out[2*i] = b.Left[i]
		m.out[2*i+1] = b.Right[i]
	}
}

// control runs the locked part of the tick and returns the master gains.
// Voices render after it returns, from the state Tick handed over.
func (m *Mixer) control() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samplePos += m.silentFrames.Swap(0)
	end := m.samplePos + int64(m.frames)
	n := 0
	for ; n < len(m.queue) && m.queue[n].at < end; n++ {
		m.eventDelay = int(max(m.queue[n].at-m.samplePos, 0))
		m.host.DispatchLocked(m.queue[n].msg)
	}
	m.eventDelay = 0
	if n > 0 {
		m.queue = append(m.queue[:0], m.queue[n:]...)
	}

	if m.activeSensing && m.samplePos-m.lastActivity > int64(m.rate) {
		m.activeSensing = false
		m.log.Info("active sensing timeout, silencing all channels")
		for _, c := range m.host.Channels() {
			c.AllSoundOffLocked()
		}
	}

	m.pool.Tick()
	m.samplePos = end

	volL, volR := m.master.Volume, m.master.Volume
	if bal := m.master.Balance; bal > 0.5 {
		volL *= (1 - bal) * 2
	} else {
		volR *= bal * 2
	}
	return volL, volR
}

// applyVolume scales the output by the squared master gain, ramping from the
// previous tick's gain.
func (m *Mixer) applyVolume(volL, volR float64) {
	b := &m.bufs
	if volL != m.lastVolL || volR != m.lastVolR {
		ramp(b.Left, float32(m.lastVolL*m.lastVolL), float32(volL*volL))
		ramp(b.Right, float32(m.lastVolR*m.lastVolR), float32(volR*volR))
		m.lastVolL, m.lastVolR = volL, volR
		return
	}
	if volL != 1 {
		vek32.MulNumber_Inplace(b.Left, float32(volL*volL))
	}
	if volR != 1 {
		vek32.MulNumber_Inplace(b.Right, float32(volR*volR))
	}
}

func ramp(buf []float32, from, to float32) {
	step := (to - from) / float32(len(buf))
	amp := from
	for i := range buf {
		amp += step
		buf[i] *= amp
	}
}

// swapDelay moves a delay buffer holding spill-over from the last tick into
// the live slot. The cleared live buffer becomes the next delay buffer.
func swapDelay(live, delay *[]float32) {
	if peak(*delay) > 0 {
		*live, *delay = *delay, *live
	}
}

func peak(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	return max(vek32.Max(buf), -vek32.Min(buf))
}
